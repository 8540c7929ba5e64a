package models

import (
	"time"

	"github.com/uptrace/bun"
)

// HostBalance tracks the withdrawable funds of one host. Available is
// only ever changed by atomic credit/debit statements.
type HostBalance struct {
	bun.BaseModel `bun:"table:host_balances"`

	HostID    string    `bun:"host_id,pk" json:"host_id"`
	Available int64     `bun:"available,notnull,default:0" json:"available"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
)

// Withdrawal debits the balance when requested; a rejection re-credits.
type Withdrawal struct {
	bun.BaseModel `bun:"table:withdrawals"`

	ID          string           `bun:"id,pk" json:"id"`
	HostID      string           `bun:"host_id,notnull" json:"host_id"`
	EventID     string           `bun:"event_id,notnull" json:"event_id"`
	Amount      int64            `bun:"amount,notnull" json:"amount"`
	Phone       string           `bun:"phone,notnull" json:"phone"`
	Status      WithdrawalStatus `bun:"status,notnull" json:"status"`
	Notes       string           `bun:"notes,nullzero" json:"notes,omitempty"`
	ProcessedAt time.Time        `bun:"processed_at,nullzero" json:"processed_at,omitempty"`
	CreatedAt   time.Time        `bun:"created_at,notnull" json:"created_at"`
}
