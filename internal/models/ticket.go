package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailed  PaymentStatus = "FAILED"
)

// Ticket is a purchase record. Reference is the gateway correlation id,
// generated before the STK push so the callback can always find it.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID              string        `bun:"id,pk" json:"id"`
	EventID         string        `bun:"event_id,notnull" json:"event_id"`
	TierID          string        `bun:"tier_id,notnull" json:"tier_id"`
	BuyerName       string        `bun:"buyer_name,notnull" json:"buyer_name"`
	BuyerPhone      string        `bun:"buyer_phone,notnull" json:"buyer_phone"`
	BuyerEmail      string        `bun:"buyer_email,nullzero" json:"buyer_email,omitempty"`
	TotalAmount     int64         `bun:"total_amount,notnull" json:"total_amount"`
	PlatformFee     int64         `bun:"platform_fee,notnull" json:"platform_fee"`
	HostFee         int64         `bun:"host_fee,notnull" json:"host_fee"`
	NetAmount       int64         `bun:"net_amount,notnull" json:"net_amount"`
	Status          PaymentStatus `bun:"status,notnull" json:"status"`
	Reference       string        `bun:"reference,unique,notnull" json:"reference"`
	CheckoutID      string        `bun:"checkout_id,nullzero" json:"checkout_id,omitempty"`
	AdmissionToken  string        `bun:"admission_token,notnull" json:"admission_token"`
	Receipt         string        `bun:"receipt,nullzero" json:"receipt,omitempty"`
	Redeemed        bool          `bun:"redeemed,notnull,default:false" json:"redeemed"`
	RedeemedAt      time.Time     `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
	ReconcileNeeded bool          `bun:"reconcile_needed,notnull,default:false" json:"reconcile_needed"`
	CreatedAt       time.Time     `bun:"created_at,notnull" json:"created_at"`
}

type RedemptionReceipt struct {
	TicketID   string    `json:"ticket_id"`
	EventID    string    `json:"event_id"`
	BuyerName  string    `json:"buyer_name"`
	TierID     string    `json:"tier_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
