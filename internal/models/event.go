package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk" json:"id"`
	HostID    string    `bun:"host_id,notnull" json:"host_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Venue     string    `bun:"venue" json:"venue"`
	StartDate time.Time `bun:"start_date,notnull" json:"start_date"`
	EndDate   time.Time `bun:"end_date,notnull" json:"end_date"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
