package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanAccessCode lets a gate volunteer exchange a per-event code for a
// short-lived scanner token.
type ScanAccessCode struct {
	bun.BaseModel `bun:"table:scan_access_codes"`

	ID        string    `bun:"id,pk" json:"id"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	Code      string    `bun:"code,unique,notnull" json:"code"`
	Active    bool      `bun:"active,notnull,default:true" json:"active"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
