// internal/model/automated_campaign.go
package model

import "time"

// Schedule types for automated campaigns.
const (
    ScheduleTypeManual   = "manual"
    ScheduleTypeInterval = "interval"
    ScheduleTypeWeekly   = "weekly"
    ScheduleTypeMonthly  = "monthly"
)

// Step types.
const (
    StepTypeSend            = "send"
    StepTypeWait            = "wait"
    StepTypeTriggerCampaign = "trigger_campaign"
)

// Run statuses (append-only ledger).
const (
    RunStatusRunning   = "running"
    RunStatusCompleted = "completed"
    RunStatusFailed    = "failed"
    RunStatusPaused    = "paused"
)

// ScheduleConfig is the type-dependent recurrence payload, stored as JSONB.
// interval uses Value/Unit; weekly uses DayTimes (weekday 0-6 -> "HH:MM") with
// Days as the legacy fallback; monthly uses DateTimes (day-of-month -> "HH:MM")
// with Dates as the legacy fallback.
type ScheduleConfig struct {
    Value     int            `json:"value,omitempty"`
    Unit      string         `json:"unit,omitempty"` // hours, days
    DayTimes  map[int]string `json:"day_times,omitempty"`
    Days      []int          `json:"days,omitempty"`
    DateTimes map[int]string `json:"date_times,omitempty"`
    Dates     []int          `json:"dates,omitempty"`
}

type AutomatedCampaign struct {
    ID           int              `db:"id" json:"id"`
    OwnerID      int              `db:"owner_id" json:"owner_id"`
    Name         string           `db:"name" json:"name"`
    AudienceID   *int             `db:"audience_id" json:"audience_id,omitempty"`
    ScheduleType string           `db:"schedule_type" json:"schedule_type"`
    Schedule     ScheduleConfig   `db:"schedule_config" json:"schedule_config"`
    SendTime     string           `db:"send_time" json:"send_time"` // "HH:MM" default time-of-day
    Settings     CampaignSettings `db:"settings" json:"settings"`
    CurrentStep  int              `db:"current_step" json:"current_step"`
    NextRunAt    *time.Time       `db:"next_run_at" json:"next_run_at,omitempty"`
    TotalSent    int              `db:"total_sent" json:"total_sent"`
    LastRunAt    *time.Time       `db:"last_run_at" json:"last_run_at,omitempty"`
    IsActive     bool             `db:"is_active" json:"is_active"`
    CreatedAt    time.Time        `db:"created_at" json:"created_at"`
    UpdatedAt    *time.Time       `db:"updated_at" json:"updated_at,omitempty"`
}

// AutomatedCampaignStep payload fields depend on StepType: send uses
// TemplateID/AudienceID/SendTime (+ optional ValidationRuleID gate), wait uses
// WaitAmount/WaitUnit, trigger_campaign uses TargetCampaignID.
type AutomatedCampaignStep struct {
    ID               int       `db:"id" json:"id"`
    CampaignID       int       `db:"campaign_id" json:"campaign_id"`
    StepOrder        int       `db:"step_order" json:"step_order"`
    StepType         string    `db:"step_type" json:"step_type"`
    TemplateID       *int      `db:"template_id" json:"template_id,omitempty"`
    AudienceID       *int      `db:"audience_id" json:"audience_id,omitempty"`
    SendTime         string    `db:"send_time" json:"send_time,omitempty"`
    ValidationRuleID string    `db:"validation_rule_id" json:"validation_rule_id,omitempty"`
    WaitAmount       int       `db:"wait_amount" json:"wait_amount,omitempty"`
    WaitUnit         string    `db:"wait_unit" json:"wait_unit,omitempty"` // hours, days
    TargetCampaignID *int      `db:"target_campaign_id" json:"target_campaign_id,omitempty"`
    CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// AutomatedCampaignRun is one append-only ledger row per step execution.
type AutomatedCampaignRun struct {
    ID             int        `db:"id" json:"id"`
    CampaignID     int        `db:"campaign_id" json:"campaign_id"`
    StepID         int        `db:"step_id" json:"step_id"`
    StepOrder      int        `db:"step_order" json:"step_order"`
    CorrelationID  string     `db:"correlation_id" json:"correlation_id"`
    SpawnedCampaignID *int    `db:"spawned_campaign_id" json:"spawned_campaign_id,omitempty"`
    Status         string     `db:"status" json:"status"`
    TotalRecipients int       `db:"total_recipients" json:"total_recipients"`
    SentCount      int        `db:"sent_count" json:"sent_count"`
    FailedCount    int        `db:"failed_count" json:"failed_count"`
    CurrentIndex   int        `db:"current_index" json:"current_index"`
    ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
    StartedAt      time.Time  `db:"started_at" json:"started_at"`
    CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
    PausedAt       *time.Time `db:"paused_at" json:"paused_at,omitempty"`
}
