package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketTier is a priced slice of an event's capacity. Sold only ever
// moves through the inventory ledger's conditional updates, so
// sold <= quantity holds at all times.
type TicketTier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	ID        string    `bun:"id,pk" json:"id"`
	EventID   string    `bun:"event_id,notnull" json:"event_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Price     int64     `bun:"price,notnull" json:"price"`
	Quantity  int       `bun:"quantity,notnull" json:"quantity"`
	Sold      int       `bun:"sold,notnull,default:0" json:"sold"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

func (t *TicketTier) IsAvailable() bool {
	return t.Sold < t.Quantity
}

func (t *TicketTier) Remaining() int {
	return t.Quantity - t.Sold
}
