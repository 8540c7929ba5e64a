package db

import (
	"context"
	"database/sql"
	"errors"

	"tikiti/internal/inventory"
	"tikiti/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ReserveSlot is a compare-and-increment: the availability check and the
// increment are one UPDATE, so sold can never pass quantity regardless
// of how many settlements race on the tier.
func (d *DB) ReserveSlot(ctx context.Context, tierID string) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("sold = sold + 1").
		Where("id = ?", tierID).
		Where("sold < quantity").
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// Distinguish a sold-out tier from a missing one.
		exists, err := d.Bun.NewSelect().
			Model((*models.TicketTier)(nil)).
			Where("id = ?", tierID).
			Exists(ctx)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, inventory.ErrTierNotFound
		}
		return 0, inventory.ErrOutOfStock
	}

	var sold int
	err = d.Bun.NewSelect().
		Model((*models.TicketTier)(nil)).
		Column("sold").
		Where("id = ?", tierID).
		Scan(ctx, &sold)
	if err != nil {
		return 0, err
	}
	return sold, nil
}

func (d *DB) ReleaseSlot(ctx context.Context, tierID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketTier)(nil)).
		Set("sold = sold - 1").
		Where("id = ?", tierID).
		Where("sold > 0").
		Exec(ctx)
	if err != nil {
		return err
	}
	// 0 rows means sold was already 0 or the tier is gone; releasing an
	// unreserved slot is a no-op either way.
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	return nil
}

func (d *DB) GetTier(ctx context.Context, tierID string) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := d.Bun.NewSelect().
		Model(&tier).
		Where("id = ?", tierID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, inventory.ErrTierNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}
