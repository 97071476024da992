// internal/model/campaign.go
package model

import "time"

// Campaign lifecycle statuses. Transitions are guarded by the campaign service;
// repositories only ever flip status through conditional updates.
const (
    CampaignStatusDraft     = "draft"
    CampaignStatusScheduled = "scheduled"
    CampaignStatusRunning   = "running"
    CampaignStatusPaused    = "paused"
    CampaignStatusCancelled = "cancelled"
    CampaignStatusCompleted = "completed"
    CampaignStatusFailed    = "failed"
)

type CampaignSettings struct {
    BatchSize            int  `json:"batch_size"`
    DelayBetweenMessages int  `json:"delay_between_messages"` // milliseconds
    DelayBetweenBatches  int  `json:"delay_between_batches"`  // milliseconds
    SkipInvalid          bool `json:"skip_invalid"`
    SkipBlocked          bool `json:"skip_blocked"`
}

type Campaign struct {
    ID              int              `db:"id" json:"id"`
    OwnerID         int              `db:"owner_id" json:"owner_id"`
    Name            string           `db:"name" json:"name"`
    AudienceID      int              `db:"audience_id" json:"audience_id"`
    TemplateID      *int             `db:"template_id" json:"template_id,omitempty"`
    Message         string           `db:"message" json:"message,omitempty"`
    Status          string           `db:"status" json:"status"`
    ScheduledAt     *time.Time       `db:"scheduled_at" json:"scheduled_at,omitempty"`
    Settings        CampaignSettings `db:"settings" json:"settings"`
    TotalRecipients int              `db:"total_recipients" json:"total_recipients"`
    SentCount       int              `db:"sent_count" json:"sent_count"`
    FailedCount     int              `db:"failed_count" json:"failed_count"`
    FailureReason   string           `db:"failure_reason" json:"failure_reason,omitempty"`
    StartedAt       *time.Time       `db:"started_at" json:"started_at,omitempty"`
    CompletedAt     *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
    CreatedAt       time.Time        `db:"created_at" json:"created_at"`
    UpdatedAt       *time.Time       `db:"updated_at" json:"updated_at,omitempty"`
}

func DefaultCampaignSettings() CampaignSettings {
    return CampaignSettings{
        BatchSize:            50,
        DelayBetweenMessages: 1000,
        DelayBetweenBatches:  5000,
        SkipInvalid:          true,
        SkipBlocked:          true,
    }
}
