package db

import (
	"context"
	"time"

	"tikiti/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetTier(ctx context.Context, id string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := d.Bun.NewSelect().
		Model(&tier).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// CreateTicketAndTransaction inserts the purchase and its settlement
// record together; the unique reference constraint makes a retried
// create fail loudly instead of producing two correlatable rows.
func (d *DB) CreateTicketAndTransaction(ctx context.Context, ticket *models.Ticket, txn *models.Transaction) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(ticket).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(txn).Exec(ctx)
		return err
	})
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketByReference(ctx context.Context, reference string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByPhone(ctx context.Context, phone string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("buyer_phone = ?", phone).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) SetCheckoutID(ctx context.Context, ticketID, checkoutID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("checkout_id = ?", checkoutID).
		Where("id = ?", ticketID).
		Exec(ctx)
	return err
}

// MarkRedeemed is the redemption serialization point: the redeemed flag
// and the paid-status guard are checked by the UPDATE itself.
func (d *DB) MarkRedeemed(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("redeemed = ?", true).
		Set("redeemed_at = ?", at).
		Where("id = ?", ticketID).
		Where("redeemed = ?", false).
		Where("status = ?", models.StatusSuccess).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetAccessCode looks up a scanner access code for volunteer auth.
func (d *DB) GetAccessCode(ctx context.Context, code string) (*models.ScanAccessCode, error) {
	var access models.ScanAccessCode
	err := d.Bun.NewSelect().
		Model(&access).
		Where("code = ?", code).
		Where("active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &access, nil
}
