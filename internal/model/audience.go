// internal/model/audience.go
package model

import (
    "time"

    "github.com/unclebandit/wabroadcast-backend/internal/filter"
)

type Audience struct {
    ID        int                `db:"id" json:"id"`
    OwnerID   int                `db:"owner_id" json:"owner_id"`
    Name      string             `db:"name" json:"name"`
    IsStatic  bool               `db:"is_static" json:"is_static"`
    Filter    *filter.Expression `db:"filter_expression" json:"filter_expression,omitempty"`
    CreatedAt time.Time          `db:"created_at" json:"created_at"`
    UpdatedAt *time.Time         `db:"updated_at" json:"updated_at,omitempty"`
}
