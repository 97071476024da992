// internal/model/contact.go
package model

import "time"

type Contact struct {
    ID             int               `db:"id" json:"id"`
    OwnerID        int               `db:"owner_id" json:"owner_id"`
    Phone          string            `db:"phone" json:"phone"`
    DisplayName    string            `db:"display_name" json:"display_name"`
    IsBlocked      bool              `db:"is_blocked" json:"is_blocked"`
    IsBotActive    bool              `db:"is_bot_active" json:"is_bot_active"`
    HasWhatsapp    bool              `db:"has_whatsapp" json:"has_whatsapp"`
    Tags           []string          `db:"tags" json:"tags"`
    Attributes     map[string]string `db:"attributes" json:"attributes"`
    CreatedAt      time.Time         `db:"created_at" json:"created_at"`
    LastActivityAt *time.Time        `db:"last_activity_at" json:"last_activity_at,omitempty"`
}
