package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tikiti/internal/gateway"
	"tikiti/internal/inventory"
	"tikiti/internal/kafka"
	"tikiti/internal/logger"
	"tikiti/internal/models"
	"tikiti/internal/monitoring"
	"tikiti/internal/notification"
	"tikiti/internal/qr"
)

var (
	// ErrUnknownReference means the callback arrived before the purchase
	// was committed (or never will be). The one case we do not ack: the
	// gateway's retry policy covers it.
	ErrUnknownReference = errors.New("no settlement record for reference")

	// ErrDuplicateCallback is an ack, not a failure: the record was
	// already terminal and no side effects were re-applied.
	ErrDuplicateCallback = errors.New("callback already processed")
)

type DBLayer interface {
	GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	// MarkTransactionSuccess/Failed flip PENDING to a terminal status in
	// one compare-and-set; false means another ingest won and the caller
	// must not apply side effects. Terminal records are never rewritten.
	MarkTransactionSuccess(ctx context.Context, reference string, meta gateway.Metadata, raw []byte) (bool, error)
	MarkTransactionFailed(ctx context.Context, reference string, raw []byte) (bool, error)
	GetTicketByReference(ctx context.Context, reference string) (*models.Ticket, error)
	SetTicketStatus(ctx context.Context, ticketID string, from, to models.PaymentStatus, receipt string) (bool, error)
	FlagReconcileNeeded(ctx context.Context, ticketID string) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetTier(ctx context.Context, id string) (*models.TicketTier, error)
}

type InventoryLedger interface {
	Reserve(ctx context.Context, tierID string) (int, error)
}

type BalanceLedger interface {
	Credit(ctx context.Context, hostID string, amount int64) error
}

type Publisher interface {
	PublishTicketSettled(event kafka.TicketSettledEvent) error
}

type Mailer interface {
	SendTicketEmail(to string, data notification.TicketEmailData, qrPNG []byte) error
}

// Service reconciles asynchronous gateway callbacks against pending
// purchases. Ingest is safe to call twice, out of order, or
// concurrently for the same reference: the transaction-status CAS is
// the only gate to side effects.
type Service struct {
	DB        DBLayer
	Inventory InventoryLedger
	Balance   BalanceLedger
	Publisher Publisher
	Mailer    Mailer
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewService(db DBLayer, inv InventoryLedger, bal BalanceLedger, pub Publisher, mailer Mailer, log *logger.Logger) *Service {
	return &Service{
		DB:        db,
		Inventory: inv,
		Balance:   bal,
		Publisher: pub,
		Mailer:    mailer,
		Logger:    log,
		Now:       time.Now,
	}
}

// Ingest advances the settlement for a reference. resultCode 0 is
// success. Returns ErrDuplicateCallback when the record was already
// terminal (callers ack), ErrUnknownReference when there is nothing to
// settle (callers do not ack), and wraps storage errors otherwise.
func (s *Service) Ingest(ctx context.Context, reference string, resultCode int, items []gateway.MetadataItem, raw []byte) error {
	txn, err := s.DB.GetTransactionByReference(ctx, reference)
	if err != nil {
		return ErrUnknownReference
	}
	if txn.Status != models.StatusPending {
		monitoring.DuplicateCallbacksTotal.Inc()
		s.Logger.Info("SETTLEMENT", fmt.Sprintf("Duplicate callback for reference %s (status %s), acking without side effects", reference, txn.Status))
		return ErrDuplicateCallback
	}

	if resultCode != 0 {
		return s.settleFailed(ctx, reference, raw)
	}
	return s.settleSuccess(ctx, reference, items, raw)
}

func (s *Service) settleFailed(ctx context.Context, reference string, raw []byte) error {
	ok, err := s.DB.MarkTransactionFailed(ctx, reference, raw)
	if err != nil {
		return fmt.Errorf("mark transaction failed for %s: %w", reference, err)
	}
	if !ok {
		monitoring.DuplicateCallbacksTotal.Inc()
		return ErrDuplicateCallback
	}

	ticket, err := s.DB.GetTicketByReference(ctx, reference)
	if err != nil {
		return fmt.Errorf("ticket for reference %s: %w", reference, err)
	}
	if _, err := s.DB.SetTicketStatus(ctx, ticket.ID, models.StatusPending, models.StatusFailed, ""); err != nil {
		return fmt.Errorf("fail ticket %s: %w", ticket.ID, err)
	}

	monitoring.SettlementsTotal.WithLabelValues("failed").Inc()
	s.Logger.Info("SETTLEMENT", fmt.Sprintf("Payment failed for reference %s, ticket %s", reference, ticket.ID))
	return nil
}

// settleSuccess applies the success side effects exactly once, in the
// order inventory -> balance -> notify. Each step is keyed by the
// reference-guarded CAS above it, so a crash mid-way leaves a
// reconcilable trail rather than a double commit.
func (s *Service) settleSuccess(ctx context.Context, reference string, items []gateway.MetadataItem, raw []byte) error {
	meta := gateway.ExtractMetadata(items)

	ok, err := s.DB.MarkTransactionSuccess(ctx, reference, meta, raw)
	if err != nil {
		return fmt.Errorf("mark transaction success for %s: %w", reference, err)
	}
	if !ok {
		// A concurrent ingest for the same reference got here first.
		monitoring.DuplicateCallbacksTotal.Inc()
		return ErrDuplicateCallback
	}

	ticket, err := s.DB.GetTicketByReference(ctx, reference)
	if err != nil {
		return fmt.Errorf("ticket for reference %s: %w", reference, err)
	}
	if _, err := s.DB.SetTicketStatus(ctx, ticket.ID, models.StatusPending, models.StatusSuccess, meta.Receipt); err != nil {
		return fmt.Errorf("mark ticket %s paid: %w", ticket.ID, err)
	}

	reconcileNeeded := false
	if _, err := s.Inventory.Reserve(ctx, ticket.TierID); err != nil {
		if errors.Is(err, inventory.ErrOutOfStock) {
			// The pre-check at purchase time lost a race on a scarce
			// tier. The buyer has paid, so the settlement stands; the
			// flag routes it to manual reconciliation instead of
			// silently overselling or dropping the order.
			reconcileNeeded = true
			monitoring.OversellFlaggedTotal.Inc()
			s.Logger.Alert("SETTLEMENT", fmt.Sprintf("Tier %s oversold by paid ticket %s (reference %s)", ticket.TierID, ticket.ID, reference))
			if flagErr := s.DB.FlagReconcileNeeded(ctx, ticket.ID); flagErr != nil {
				s.Logger.Alert("SETTLEMENT", fmt.Sprintf("Failed to flag ticket %s: %v", ticket.ID, flagErr))
			}
		} else {
			return fmt.Errorf("reserve tier %s for ticket %s: %w", ticket.TierID, ticket.ID, err)
		}
	}

	event, err := s.DB.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return fmt.Errorf("event %s for ticket %s: %w", ticket.EventID, ticket.ID, err)
	}
	if err := s.Balance.Credit(ctx, event.HostID, ticket.NetAmount); err != nil {
		return fmt.Errorf("credit host %s for ticket %s: %w", event.HostID, ticket.ID, err)
	}

	monitoring.SettlementsTotal.WithLabelValues("success").Inc()
	s.Logger.Info("SETTLEMENT", fmt.Sprintf("Settled reference %s: ticket %s paid, host %s credited KES %d", reference, ticket.ID, event.HostID, ticket.NetAmount))

	s.publishSettled(ticket, reconcileNeeded)
	s.notifyBuyer(ticket, event, meta)
	return nil
}

func (s *Service) publishSettled(ticket *models.Ticket, reconcileNeeded bool) {
	if s.Publisher == nil {
		return
	}
	event := kafka.TicketSettledEvent{
		TicketID:        ticket.ID,
		EventID:         ticket.EventID,
		TierID:          ticket.TierID,
		Reference:       ticket.Reference,
		Status:          models.StatusSuccess,
		NetAmount:       ticket.NetAmount,
		ReconcileNeeded: reconcileNeeded,
		Timestamp:       s.Now(),
	}
	if err := s.Publisher.PublishTicketSettled(event); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish settlement event for ticket %s: %v", ticket.ID, err))
	}
}

// notifyBuyer dispatches the confirmation email in the background.
// Best-effort: a send failure never rolls back the settlement or
// reaches the gateway.
func (s *Service) notifyBuyer(ticket *models.Ticket, event *models.Event, meta gateway.Metadata) {
	if s.Mailer == nil || ticket.BuyerEmail == "" {
		return
	}

	tierName := ticket.TierID
	if tier, err := s.DB.GetTier(context.Background(), ticket.TierID); err == nil {
		tierName = tier.Name
	}

	go func() {
		png, err := qr.Render(ticket.AdmissionToken)
		if err != nil {
			s.Logger.Warn("EMAIL", fmt.Sprintf("Failed to render QR for ticket %s: %v", ticket.ID, err))
			png = nil
		}

		data := notification.TicketEmailData{
			BuyerName: ticket.BuyerName,
			EventName: event.Name,
			EventDate: event.StartDate,
			Venue:     event.Venue,
			TierName:  tierName,
			Amount:    ticket.TotalAmount,
			Receipt:   meta.Receipt,
		}
		if err := s.Mailer.SendTicketEmail(ticket.BuyerEmail, data, png); err != nil {
			s.Logger.Warn("EMAIL", fmt.Sprintf("Ticket email for %s not delivered: %v", ticket.ID, err))
		}
	}()
}
