package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Transaction is the settlement record for one payment attempt. It is
// created PENDING alongside its ticket; the status flip at callback time
// is the idempotency gate for every downstream side effect.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID         string        `bun:"id,pk" json:"id"`
	TicketID   string        `bun:"ticket_id,notnull" json:"ticket_id"`
	EventID    string        `bun:"event_id,notnull" json:"event_id"`
	Reference  string        `bun:"reference,unique,notnull" json:"reference"`
	Amount     int64         `bun:"amount,notnull" json:"amount"`
	Status     PaymentStatus `bun:"status,notnull" json:"status"`
	Receipt    string        `bun:"receipt,nullzero" json:"receipt,omitempty"`
	Phone      string        `bun:"phone,nullzero" json:"phone,omitempty"`
	PaidAt     time.Time     `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	RawPayload []byte        `bun:"raw_payload,nullzero" json:"-"`
	CreatedAt  time.Time     `bun:"created_at,notnull" json:"created_at"`
}
