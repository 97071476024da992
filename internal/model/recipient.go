// internal/model/recipient.go
package model

import "time"

// Recipient statuses. pending and sending are the non-terminal states; a
// campaign completes once no recipient remains in either.
const (
    RecipientStatusPending   = "pending"
    RecipientStatusSending   = "sending"
    RecipientStatusSent      = "sent"
    RecipientStatusDelivered = "delivered"
    RecipientStatusRead      = "read"
    RecipientStatusFailed    = "failed"
)

// Recipient is one row of a campaign's recipient ledger. Phone and display
// name are snapshots taken at materialization time, so later contact edits do
// not retroactively change a running campaign.
type Recipient struct {
    ID           int        `db:"id" json:"id"`
    CampaignID   int        `db:"campaign_id" json:"campaign_id"`
    ContactID    int        `db:"contact_id" json:"contact_id"`
    Phone        string     `db:"phone" json:"phone"`
    DisplayName  string     `db:"display_name" json:"display_name"`
    Status       string     `db:"status" json:"status"`
    ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
    SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
    DeliveredAt  *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
    ReadAt       *time.Time `db:"read_at" json:"read_at,omitempty"`
    CreatedAt    time.Time  `db:"created_at" json:"created_at"`
    UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func RecipientStatusTerminal(status string) bool {
    switch status {
    case RecipientStatusSent, RecipientStatusDelivered, RecipientStatusRead, RecipientStatusFailed:
        return true
    }
    return false
}
