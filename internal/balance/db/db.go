package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tikiti/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// Credit upserts the balance row and increments available in one
// statement, so concurrent credits never lose an update.
func (d *DB) Credit(ctx context.Context, hostID string, amount int64) error {
	balance := &models.HostBalance{
		HostID:    hostID,
		Available: amount,
		UpdatedAt: time.Now(),
	}
	_, err := d.Bun.NewInsert().
		Model(balance).
		On("CONFLICT (host_id) DO UPDATE").
		Set("available = host_balance.available + EXCLUDED.available").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Debit is a check-and-subtract: the balance check and the decrement are
// one UPDATE, so available can never go negative.
func (d *DB) Debit(ctx context.Context, hostID string, amount int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.HostBalance)(nil)).
		Set("available = available - ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("host_id = ?", hostID).
		Where("available >= ?", amount).
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

func (d *DB) GetBalance(ctx context.Context, hostID string) (*models.HostBalance, error) {
	var balance models.HostBalance
	err := d.Bun.NewSelect().
		Model(&balance).
		Where("host_id = ?", hostID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		// No credits yet means a zero balance, not an error.
		return &models.HostBalance{HostID: hostID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	_, err := d.Bun.NewInsert().Model(w).Exec(ctx)
	return err
}

func (d *DB) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	err := d.Bun.NewSelect().
		Model(&withdrawal).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (d *DB) ListWithdrawals(ctx context.Context, hostID string) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := d.Bun.NewSelect().
		Model(&withdrawals).
		Where("host_id = ?", hostID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return withdrawals, nil
}

// SetWithdrawalStatus is the CAS that serializes concurrent decisions on
// the same withdrawal.
func (d *DB) SetWithdrawalStatus(ctx context.Context, id string, from, to models.WithdrawalStatus, notes string, processedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Withdrawal)(nil)).
		Set("status = ?", to).
		Set("notes = ?", notes).
		Set("processed_at = ?", processedAt).
		Where("id = ?", id).
		Where("status = ?", from).
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
