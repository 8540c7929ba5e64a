package db

import (
	"context"

	"tikiti/internal/gateway"
	"tikiti/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	err := d.Bun.NewSelect().
		Model(&txn).
		Where("reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// MarkTransactionSuccess is the settlement idempotency gate: the status
// guard in the WHERE clause means only one caller ever sees true for a
// given reference.
func (d *DB) MarkTransactionSuccess(ctx context.Context, reference string, meta gateway.Metadata, raw []byte) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("status = ?", models.StatusSuccess).
		Set("receipt = ?", meta.Receipt).
		Set("phone = ?", meta.Phone).
		Set("raw_payload = ?", raw).
		Where("reference = ?", reference).
		Where("status = ?", models.StatusPending)
	if !meta.PaidAt.IsZero() {
		q = q.Set("paid_at = ?", meta.PaidAt)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) MarkTransactionFailed(ctx context.Context, reference string, raw []byte) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("status = ?", models.StatusFailed).
		Set("raw_payload = ?", raw).
		Where("reference = ?", reference).
		Where("status = ?", models.StatusPending).
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

func (d *DB) SetTicketStatus(ctx context.Context, ticketID string, from, to models.PaymentStatus, receipt string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Where("id = ?", ticketID).
		Where("status = ?", from)
	if receipt != "" {
		q = q.Set("receipt = ?", receipt)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) FlagReconcileNeeded(ctx context.Context, ticketID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("reconcile_needed = ?", true).
		Where("id = ?", ticketID).
		Exec(ctx)
	return err
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
