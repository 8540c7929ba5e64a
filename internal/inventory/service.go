package inventory

import (
	"context"
	"errors"
	"fmt"

	"tikiti/internal/logger"
	"tikiti/internal/models"
)

var (
	ErrOutOfStock   = errors.New("no tickets available for this tier")
	ErrTierNotFound = errors.New("ticket tier not found")
)

type DBLayer interface {
	// ReserveSlot increments sold iff sold < quantity, in one statement.
	// Returns the new sold count, or ErrOutOfStock / ErrTierNotFound.
	ReserveSlot(ctx context.Context, tierID string) (int, error)
	// ReleaseSlot decrements sold iff sold > 0.
	ReleaseSlot(ctx context.Context, tierID string) error
	GetTier(ctx context.Context, tierID string) (*models.TicketTier, error)
}

// Service is the inventory ledger: the only writer of tier sold counters.
type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

// Reserve commits one slot on the tier. Two concurrent calls with one
// slot left yield exactly one success and one ErrOutOfStock; failure is
// terminal for the attempt, there are no retries.
func (s *Service) Reserve(ctx context.Context, tierID string) (int, error) {
	sold, err := s.DB.ReserveSlot(ctx, tierID)
	if err != nil {
		if errors.Is(err, ErrOutOfStock) {
			s.Logger.Warn("INVENTORY", fmt.Sprintf("Tier %s sold out", tierID))
		}
		return 0, err
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Reserved slot on tier %s, sold=%d", tierID, sold))
	return sold, nil
}

// Release undoes an erroneous reservation after a confirmed-failed
// settlement. Not part of the happy path.
func (s *Service) Release(ctx context.Context, tierID string) error {
	if err := s.DB.ReleaseSlot(ctx, tierID); err != nil {
		return fmt.Errorf("release slot on tier %s: %w", tierID, err)
	}
	s.Logger.Info("INVENTORY", fmt.Sprintf("Released slot on tier %s", tierID))
	return nil
}

func (s *Service) GetTier(ctx context.Context, tierID string) (*models.TicketTier, error) {
	return s.DB.GetTier(ctx, tierID)
}
