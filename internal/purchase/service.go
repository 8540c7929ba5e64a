package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tikiti/internal/config"
	"tikiti/internal/inventory"
	"tikiti/internal/logger"
	"tikiti/internal/models"
	"tikiti/internal/monitoring"
	"tikiti/internal/token"

	"github.com/google/uuid"
)

// ActivationWindow is how long before the event start a ticket becomes
// scannable at the gate.
const ActivationWindow = 4 * time.Hour

// ActiveFrom is the moment a ticket for an event becomes redeemable.
// Pure so the window rule tests without a wall clock.
func ActiveFrom(eventStart time.Time) time.Time {
	return eventStart.Add(-ActivationWindow)
}

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrWrongEvent        = errors.New("ticket is for a different event")
	ErrPaymentIncomplete = errors.New("ticket payment not completed")
	ErrEventEnded        = errors.New("event has ended")
)

// AlreadyRedeemedError tells the losing scanner when the winning scan
// happened.
type AlreadyRedeemedError struct {
	RedeemedAt time.Time
}

func (e *AlreadyRedeemedError) Error() string {
	return fmt.Sprintf("ticket already used at %s", e.RedeemedAt.Format(time.RFC3339))
}

// NotYetActiveError is returned for scans before the activation window
// opens.
type NotYetActiveError struct {
	ActiveFrom time.Time
}

func (e *NotYetActiveError) Error() string {
	return fmt.Sprintf("ticket not active yet, active from %s", e.ActiveFrom.Format(time.RFC3339))
}

type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetTier(ctx context.Context, id string) (*models.TicketTier, error)
	// CreateTicketAndTransaction persists both PENDING records in one
	// database transaction; the shared reference is unique.
	CreateTicketAndTransaction(ctx context.Context, ticket *models.Ticket, txn *models.Transaction) error
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketByReference(ctx context.Context, reference string) (*models.Ticket, error)
	GetTicketsByPhone(ctx context.Context, phone string) ([]models.Ticket, error)
	SetCheckoutID(ctx context.Context, ticketID, checkoutID string) error
	// MarkRedeemed flips redeemed=false -> true iff status is SUCCESS,
	// in one statement. False means another scanner won the race.
	MarkRedeemed(ctx context.Context, ticketID string, at time.Time) (bool, error)
}

// Service owns the ticket lifecycle: PENDING -> SUCCESS|FAILED at
// settlement, SUCCESS -> redeemed at the gate, nothing after that.
type Service struct {
	DB     DBLayer
	Tokens *token.Service
	Fees   config.FeeConfig
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(db DBLayer, tokens *token.Service, fees config.FeeConfig, log *logger.Logger) *Service {
	return &Service{DB: db, Tokens: tokens, Fees: fees, Logger: log, Now: time.Now}
}

type CreateRequest struct {
	EventID    string `json:"event_id"`
	TierID     string `json:"tier_id"`
	BuyerName  string `json:"buyer_name"`
	BuyerPhone string `json:"buyer_phone"`
	BuyerEmail string `json:"buyer_email,omitempty"`
}

// Create validates the tier, mints the admission token and persists a
// PENDING ticket plus its sibling settlement record. The availability
// check here is advisory only: the slot is committed at settlement, so
// abandoned payment attempts never hold inventory. The returned
// reference is what the caller hands to the payment gateway.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Ticket, error) {
	event, err := s.DB.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, ErrEventNotFound
	}

	tier, err := s.DB.GetTier(ctx, req.TierID)
	if err != nil || tier.EventID != event.ID {
		return nil, inventory.ErrTierNotFound
	}
	if !tier.IsAvailable() {
		return nil, inventory.ErrOutOfStock
	}

	ticketID := uuid.NewString()
	reference := uuid.NewString()

	admissionToken, err := s.Tokens.Mint(ticketID, event.ID, req.BuyerPhone)
	if err != nil {
		return nil, fmt.Errorf("mint admission token: %w", err)
	}

	now := s.Now()
	ticket := &models.Ticket{
		ID:             ticketID,
		EventID:        event.ID,
		TierID:         tier.ID,
		BuyerName:      req.BuyerName,
		BuyerPhone:     req.BuyerPhone,
		BuyerEmail:     req.BuyerEmail,
		TotalAmount:    tier.Price + s.Fees.Platform,
		PlatformFee:    s.Fees.Platform,
		HostFee:        s.Fees.Host,
		NetAmount:      tier.Price - s.Fees.Host,
		Status:         models.StatusPending,
		Reference:      reference,
		AdmissionToken: admissionToken,
		CreatedAt:      now,
	}
	txn := &models.Transaction{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		EventID:   event.ID,
		Reference: reference,
		Amount:    ticket.TotalAmount,
		Status:    models.StatusPending,
		CreatedAt: now,
	}

	if err := s.DB.CreateTicketAndTransaction(ctx, ticket, txn); err != nil {
		return nil, fmt.Errorf("persist pending purchase: %w", err)
	}

	s.Logger.Info("PURCHASE", fmt.Sprintf("Created pending ticket %s (reference %s) for event %s", ticketID, reference, event.ID))
	return ticket, nil
}

// AttachCheckout records the gateway's checkout id after the STK push.
// Purely informational; correlation uses the reference.
func (s *Service) AttachCheckout(ctx context.Context, ticketID, checkoutID string) error {
	return s.DB.SetCheckoutID(ctx, ticketID, checkoutID)
}

func (s *Service) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Service) GetTicketByReference(ctx context.Context, reference string) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByReference(ctx, reference)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Service) GetTicketsByPhone(ctx context.Context, phone string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByPhone(ctx, phone)
}

// checkRedeemable runs the ordered gate checks. Identity and
// authorization first, then payment, then timing, so the scanner sees
// the most actionable error.
func (s *Service) checkRedeemable(ticket *models.Ticket, event *models.Event, presentedEventID string, now time.Time) error {
	if presentedEventID != "" && ticket.EventID != presentedEventID {
		return ErrWrongEvent
	}
	if ticket.Redeemed {
		return &AlreadyRedeemedError{RedeemedAt: ticket.RedeemedAt}
	}
	if ticket.Status != models.StatusSuccess {
		return ErrPaymentIncomplete
	}
	if activeFrom := ActiveFrom(event.StartDate); now.Before(activeFrom) {
		return &NotYetActiveError{ActiveFrom: activeFrom}
	}
	if now.After(event.EndDate) {
		return ErrEventEnded
	}
	return nil
}

// Validate is the read-only scan check: it verifies the token signature
// and runs the redeem checks without consuming the ticket.
func (s *Service) Validate(ctx context.Context, admissionToken, presentedEventID string) (*models.Ticket, error) {
	payload, err := s.Tokens.Verify(admissionToken)
	if err != nil {
		return nil, err
	}

	ticket, err := s.DB.GetTicketByID(ctx, payload.TicketID)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	event, err := s.DB.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, ErrEventNotFound
	}

	if err := s.checkRedeemable(ticket, event, presentedEventID, s.Now()); err != nil {
		return nil, err
	}
	return ticket, nil
}

// RedeemToken verifies the presented token and redeems its ticket.
func (s *Service) RedeemToken(ctx context.Context, admissionToken, presentedEventID string) (*models.RedemptionReceipt, error) {
	payload, err := s.Tokens.Verify(admissionToken)
	if err != nil {
		monitoring.RedemptionsTotal.WithLabelValues("invalid_token").Inc()
		return nil, err
	}
	return s.Redeem(ctx, payload.TicketID, presentedEventID)
}

// Redeem grants admission exactly once. The ordered checks surface a
// specific reason; the final compare-and-set on (redeemed, status) is
// what serializes duplicate scans of the same ticket, so the loser of a
// race still gets AlreadyRedeemed.
func (s *Service) Redeem(ctx context.Context, ticketID, presentedEventID string) (*models.RedemptionReceipt, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		monitoring.RedemptionsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrTicketNotFound
	}
	event, err := s.DB.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, ErrEventNotFound
	}

	now := s.Now()
	if err := s.checkRedeemable(ticket, event, presentedEventID, now); err != nil {
		monitoring.RedemptionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	ok, err := s.DB.MarkRedeemed(ctx, ticketID, now)
	if err != nil {
		return nil, fmt.Errorf("mark ticket %s redeemed: %w", ticketID, err)
	}
	if !ok {
		// Lost the race: re-read for the winning scan's timestamp.
		monitoring.RedemptionsTotal.WithLabelValues("duplicate").Inc()
		redeemedAt := now
		if fresh, err := s.DB.GetTicketByID(ctx, ticketID); err == nil && !fresh.RedeemedAt.IsZero() {
			redeemedAt = fresh.RedeemedAt
		}
		return nil, &AlreadyRedeemedError{RedeemedAt: redeemedAt}
	}

	monitoring.RedemptionsTotal.WithLabelValues("redeemed").Inc()
	s.Logger.Info("SCAN", fmt.Sprintf("Ticket %s redeemed for event %s", ticketID, ticket.EventID))

	return &models.RedemptionReceipt{
		TicketID:   ticketID,
		EventID:    ticket.EventID,
		BuyerName:  ticket.BuyerName,
		TierID:     ticket.TierID,
		RedeemedAt: now,
	}, nil
}
