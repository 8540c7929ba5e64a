package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tikiti/internal/kafka"
	"tikiti/internal/logger"
	"tikiti/internal/models"
	"tikiti/internal/monitoring"

	"github.com/google/uuid"
)

// WithdrawalHold is how long after an event ends its takings stay locked.
const WithdrawalHold = 24 * time.Hour

var (
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrEventNotFound      = errors.New("event not found")
	ErrNotEventHost       = errors.New("not the host of this event")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrAlreadyProcessed   = errors.New("withdrawal already processed")
)

// HoldError reports an event-tied withdrawal requested before the hold
// expires, carrying the time it becomes available.
type HoldError struct {
	AvailableAt time.Time
}

func (e *HoldError) Error() string {
	return fmt.Sprintf("withdrawals open %s", e.AvailableAt.Format(time.RFC3339))
}

// WithdrawableAt is the earliest moment an event's takings can be
// requested. Pure so the hold rule tests without a wall clock.
func WithdrawableAt(eventEnd time.Time) time.Time {
	return eventEnd.Add(WithdrawalHold)
}

type DBLayer interface {
	// Credit atomically increments a host balance, creating it at zero
	// first if needed.
	Credit(ctx context.Context, hostID string, amount int64) error
	// Debit subtracts iff available >= amount, in one statement; false
	// means insufficient funds and no mutation.
	Debit(ctx context.Context, hostID string, amount int64) (bool, error)
	GetBalance(ctx context.Context, hostID string) (*models.HostBalance, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, hostID string) ([]models.Withdrawal, error)
	// SetWithdrawalStatus flips from->to and returns false if the row was
	// not in `from` (someone else processed it first).
	SetWithdrawalStatus(ctx context.Context, id string, from, to models.WithdrawalStatus, notes string, processedAt time.Time) (bool, error)
}

type Publisher interface {
	PublishWithdrawal(event kafka.WithdrawalEvent) error
}

// Service owns the host balance counters and the withdrawal workflow.
type Service struct {
	DB        DBLayer
	Publisher Publisher
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewService(db DBLayer, publisher Publisher, log *logger.Logger) *Service {
	return &Service{DB: db, Publisher: publisher, Logger: log, Now: time.Now}
}

// Credit adds settled ticket proceeds to the host's withdrawable balance.
func (s *Service) Credit(ctx context.Context, hostID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if err := s.DB.Credit(ctx, hostID, amount); err != nil {
		return fmt.Errorf("credit host %s: %w", hostID, err)
	}
	s.Logger.Info("BALANCE", fmt.Sprintf("Credited host %s with KES %d", hostID, amount))
	return nil
}

func (s *Service) GetBalance(ctx context.Context, hostID string) (*models.HostBalance, error) {
	return s.DB.GetBalance(ctx, hostID)
}

// RequestWithdrawal debits the amount immediately so the funds are held
// while an admin decides. Event-tied requests must wait out the
// post-event hold, checked at request time only.
func (s *Service) RequestWithdrawal(ctx context.Context, hostID string, amount int64, eventID, phone string) (*models.Withdrawal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}

	if eventID != "" {
		event, err := s.DB.GetEvent(ctx, eventID)
		if err != nil {
			return nil, ErrEventNotFound
		}
		if event.HostID != hostID {
			return nil, ErrNotEventHost
		}
		if availableAt := WithdrawableAt(event.EndDate); s.Now().Before(availableAt) {
			return nil, &HoldError{AvailableAt: availableAt}
		}
	}

	ok, err := s.DB.Debit(ctx, hostID, amount)
	if err != nil {
		return nil, fmt.Errorf("debit host %s: %w", hostID, err)
	}
	if !ok {
		monitoring.WithdrawalsTotal.WithLabelValues("insufficient").Inc()
		return nil, ErrInsufficientFunds
	}

	withdrawal := &models.Withdrawal{
		ID:        uuid.NewString(),
		HostID:    hostID,
		EventID:   eventID,
		Amount:    amount,
		Phone:     phone,
		Status:    models.WithdrawalPending,
		CreatedAt: s.Now(),
	}
	if err := s.DB.CreateWithdrawal(ctx, withdrawal); err != nil {
		// The debit already happened; put the funds back before failing.
		if creditErr := s.DB.Credit(ctx, hostID, amount); creditErr != nil {
			s.Logger.Alert("BALANCE", fmt.Sprintf("Failed to re-credit host %s KES %d after withdrawal insert failure: %v", hostID, amount, creditErr))
		}
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}

	monitoring.WithdrawalsTotal.WithLabelValues("requested").Inc()
	s.Logger.Info("BALANCE", fmt.Sprintf("Withdrawal %s requested: host %s, KES %d", withdrawal.ID, hostID, amount))
	s.publish(withdrawal)
	return withdrawal, nil
}

// ProcessWithdrawal completes or rejects a pending withdrawal. The
// status CAS makes concurrent decisions race safely: only one applies.
// Rejection re-credits the held amount; completion leaves the debit
// final.
func (s *Service) ProcessWithdrawal(ctx context.Context, id string, approve bool, notes string) (*models.Withdrawal, error) {
	withdrawal, err := s.DB.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, ErrWithdrawalNotFound
	}

	target := models.WithdrawalRejected
	if approve {
		target = models.WithdrawalCompleted
	}

	processedAt := s.Now()
	ok, err := s.DB.SetWithdrawalStatus(ctx, id, models.WithdrawalPending, target, notes, processedAt)
	if err != nil {
		return nil, fmt.Errorf("process withdrawal %s: %w", id, err)
	}
	if !ok {
		return nil, ErrAlreadyProcessed
	}

	if !approve {
		if err := s.DB.Credit(ctx, withdrawal.HostID, withdrawal.Amount); err != nil {
			s.Logger.Alert("BALANCE", fmt.Sprintf("Failed to re-credit host %s KES %d for rejected withdrawal %s: %v", withdrawal.HostID, withdrawal.Amount, id, err))
		}
	}

	withdrawal.Status = target
	withdrawal.Notes = notes
	withdrawal.ProcessedAt = processedAt

	monitoring.WithdrawalsTotal.WithLabelValues(string(target)).Inc()
	s.Logger.Info("BALANCE", fmt.Sprintf("Withdrawal %s -> %s", id, target))
	s.publish(withdrawal)
	return withdrawal, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, hostID string) ([]models.Withdrawal, error) {
	return s.DB.ListWithdrawals(ctx, hostID)
}

func (s *Service) publish(w *models.Withdrawal) {
	if s.Publisher == nil {
		return
	}
	event := kafka.WithdrawalEvent{
		WithdrawalID: w.ID,
		HostID:       w.HostID,
		Amount:       w.Amount,
		Status:       w.Status,
		Timestamp:    s.Now(),
	}
	if err := s.Publisher.PublishWithdrawal(event); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish withdrawal event for %s: %v", w.ID, err))
	}
}
