package purchase

import (
	"context"
	"errors"
	"testing"
	"time"

	"tikiti/internal/config"
	"tikiti/internal/inventory"
	"tikiti/internal/logger"
	"tikiti/internal/models"
	"tikiti/internal/token"
)

type MockDB struct {
	events       map[string]*models.Event
	tiers        map[string]*models.TicketTier
	tickets      map[string]*models.Ticket
	transactions map[string]*models.Transaction
	failCreate   bool
}

func NewMockDB() *MockDB {
	return &MockDB{
		events:       make(map[string]*models.Event),
		tiers:        make(map[string]*models.TicketTier),
		tickets:      make(map[string]*models.Ticket),
		transactions: make(map[string]*models.Transaction),
	}
}

func (m *MockDB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, ok := m.events[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return event, nil
}

func (m *MockDB) GetTier(ctx context.Context, id string) (*models.TicketTier, error) {
	tier, ok := m.tiers[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return tier, nil
}

func (m *MockDB) CreateTicketAndTransaction(ctx context.Context, ticket *models.Ticket, txn *models.Transaction) error {
	if m.failCreate {
		return errors.New("insert failed")
	}
	m.tickets[ticket.ID] = ticket
	m.transactions[txn.Reference] = txn
	return nil
}

func (m *MockDB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return ticket, nil
}

func (m *MockDB) GetTicketByReference(ctx context.Context, reference string) (*models.Ticket, error) {
	for _, ticket := range m.tickets {
		if ticket.Reference == reference {
			return ticket, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *MockDB) GetTicketsByPhone(ctx context.Context, phone string) ([]models.Ticket, error) {
	var out []models.Ticket
	for _, ticket := range m.tickets {
		if ticket.BuyerPhone == phone {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (m *MockDB) SetCheckoutID(ctx context.Context, ticketID, checkoutID string) error {
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return errors.New("not found")
	}
	ticket.CheckoutID = checkoutID
	return nil
}

func (m *MockDB) MarkRedeemed(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return false, nil
	}
	if ticket.Redeemed || ticket.Status != models.StatusSuccess {
		return false, nil
	}
	ticket.Redeemed = true
	ticket.RedeemedAt = at
	return true, nil
}

var testLog = logger.NewLogger()

func newTestService(db *MockDB) *Service {
	tokens := token.NewService("test-secret", nil)
	return NewService(db, tokens, config.FeeConfig{Platform: 20, Host: 15}, testLog)
}

func seedEvent(db *MockDB, start, end time.Time) {
	db.events["event-1"] = &models.Event{
		ID:        "event-1",
		HostID:    "host-1",
		Name:      "Test Gig",
		StartDate: start,
		EndDate:   end,
	}
	db.tiers["tier-1"] = &models.TicketTier{
		ID:       "tier-1",
		EventID:  "event-1",
		Name:     "Regular",
		Price:    500,
		Quantity: 10,
		Sold:     0,
	}
}

func seedPaidTicket(db *MockDB, svc *Service) *models.Ticket {
	ticket, err := svc.Create(context.Background(), CreateRequest{
		EventID:    "event-1",
		TierID:     "tier-1",
		BuyerName:  "Wanjiku",
		BuyerPhone: "254700000001",
	})
	if err != nil {
		panic(err)
	}
	ticket.Status = models.StatusSuccess
	return ticket
}

func TestCreateComputesFees(t *testing.T) {
	db := NewMockDB()
	seedEvent(db, time.Now().Add(48*time.Hour), time.Now().Add(54*time.Hour))
	svc := newTestService(db)

	ticket, err := svc.Create(context.Background(), CreateRequest{
		EventID:    "event-1",
		TierID:     "tier-1",
		BuyerName:  "Wanjiku",
		BuyerPhone: "254700000001",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if ticket.TotalAmount != 520 {
		t.Errorf("Expected buyer total 520 (price 500 + platform fee 20), got %d", ticket.TotalAmount)
	}
	if ticket.NetAmount != 485 {
		t.Errorf("Expected host net 485 (price 500 - host fee 15), got %d", ticket.NetAmount)
	}
	if ticket.Status != models.StatusPending {
		t.Errorf("Expected new ticket to be PENDING, got %s", ticket.Status)
	}
	if ticket.Reference == "" || ticket.AdmissionToken == "" {
		t.Error("Expected reference and admission token to be set at creation")
	}

	txn, ok := db.transactions[ticket.Reference]
	if !ok {
		t.Fatal("Expected a settlement record keyed by the reference")
	}
	if txn.Status != models.StatusPending || txn.Amount != ticket.TotalAmount {
		t.Errorf("Settlement record mismatch: status=%s amount=%d", txn.Status, txn.Amount)
	}
}

func TestCreateRejectsSoldOutTier(t *testing.T) {
	db := NewMockDB()
	seedEvent(db, time.Now().Add(48*time.Hour), time.Now().Add(54*time.Hour))
	db.tiers["tier-1"].Sold = 10
	svc := newTestService(db)

	_, err := svc.Create(context.Background(), CreateRequest{
		EventID: "event-1", TierID: "tier-1", BuyerPhone: "254700000001",
	})
	if !errors.Is(err, inventory.ErrOutOfStock) {
		t.Errorf("Expected ErrOutOfStock, got %v", err)
	}
}

func TestCreateRejectsTierFromOtherEvent(t *testing.T) {
	db := NewMockDB()
	seedEvent(db, time.Now().Add(48*time.Hour), time.Now().Add(54*time.Hour))
	db.tiers["tier-1"].EventID = "event-2"
	svc := newTestService(db)

	_, err := svc.Create(context.Background(), CreateRequest{
		EventID: "event-1", TierID: "tier-1", BuyerPhone: "254700000001",
	})
	if !errors.Is(err, inventory.ErrTierNotFound) {
		t.Errorf("Expected ErrTierNotFound, got %v", err)
	}
}

func TestRedeemHappyPath(t *testing.T) {
	db := NewMockDB()
	now := time.Now()
	seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
	svc := newTestService(db)
	ticket := seedPaidTicket(db, svc)

	receipt, err := svc.Redeem(context.Background(), ticket.ID, "event-1")
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if receipt.TicketID != ticket.ID || receipt.BuyerName != "Wanjiku" {
		t.Errorf("Unexpected receipt: %+v", receipt)
	}
	if !db.tickets[ticket.ID].Redeemed {
		t.Error("Expected ticket to be marked redeemed")
	}
}

func TestRedeemSecondScanReportsFirstScanTime(t *testing.T) {
	db := NewMockDB()
	now := time.Now()
	seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
	svc := newTestService(db)
	ticket := seedPaidTicket(db, svc)

	if _, err := svc.Redeem(context.Background(), ticket.ID, "event-1"); err != nil {
		t.Fatalf("First redeem failed: %v", err)
	}
	firstScan := db.tickets[ticket.ID].RedeemedAt

	_, err := svc.Redeem(context.Background(), ticket.ID, "event-1")
	var already *AlreadyRedeemedError
	if !errors.As(err, &already) {
		t.Fatalf("Expected AlreadyRedeemedError, got %v", err)
	}
	if !already.RedeemedAt.Equal(firstScan) {
		t.Errorf("Expected error to carry the first scan time %v, got %v", firstScan, already.RedeemedAt)
	}
}

func TestRedeemOrderedChecks(t *testing.T) {
	now := time.Now()

	t.Run("not found", func(t *testing.T) {
		db := NewMockDB()
		seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
		svc := newTestService(db)

		_, err := svc.Redeem(context.Background(), "no-such-ticket", "event-1")
		if !errors.Is(err, ErrTicketNotFound) {
			t.Errorf("Expected ErrTicketNotFound, got %v", err)
		}
	})

	t.Run("wrong event outranks redeemed and payment", func(t *testing.T) {
		db := NewMockDB()
		seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
		svc := newTestService(db)
		ticket := seedPaidTicket(db, svc)
		ticket.Redeemed = true
		ticket.Status = models.StatusPending

		_, err := svc.Redeem(context.Background(), ticket.ID, "event-other")
		if !errors.Is(err, ErrWrongEvent) {
			t.Errorf("Expected ErrWrongEvent to win, got %v", err)
		}
	})

	t.Run("already redeemed outranks payment state", func(t *testing.T) {
		db := NewMockDB()
		seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
		svc := newTestService(db)
		ticket := seedPaidTicket(db, svc)
		ticket.Redeemed = true
		ticket.RedeemedAt = now.Add(-10 * time.Minute)
		ticket.Status = models.StatusPending

		_, err := svc.Redeem(context.Background(), ticket.ID, "event-1")
		var already *AlreadyRedeemedError
		if !errors.As(err, &already) {
			t.Errorf("Expected AlreadyRedeemedError to win, got %v", err)
		}
	})

	t.Run("payment incomplete", func(t *testing.T) {
		db := NewMockDB()
		seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
		svc := newTestService(db)
		ticket := seedPaidTicket(db, svc)
		ticket.Status = models.StatusPending

		_, err := svc.Redeem(context.Background(), ticket.ID, "event-1")
		if !errors.Is(err, ErrPaymentIncomplete) {
			t.Errorf("Expected ErrPaymentIncomplete, got %v", err)
		}
	})

	t.Run("not yet active reports activation time", func(t *testing.T) {
		db := NewMockDB()
		start := now.Add(10 * time.Hour)
		seedEvent(db, start, start.Add(6*time.Hour))
		svc := newTestService(db)
		ticket := seedPaidTicket(db, svc)

		_, err := svc.Redeem(context.Background(), ticket.ID, "event-1")
		var notYet *NotYetActiveError
		if !errors.As(err, &notYet) {
			t.Fatalf("Expected NotYetActiveError, got %v", err)
		}
		want := start.Add(-ActivationWindow)
		if !notYet.ActiveFrom.Equal(want) {
			t.Errorf("Expected ActiveFrom %v, got %v", want, notYet.ActiveFrom)
		}
	})

	t.Run("event ended", func(t *testing.T) {
		db := NewMockDB()
		seedEvent(db, now.Add(-10*time.Hour), now.Add(-2*time.Hour))
		svc := newTestService(db)
		ticket := seedPaidTicket(db, svc)

		_, err := svc.Redeem(context.Background(), ticket.ID, "event-1")
		if !errors.Is(err, ErrEventEnded) {
			t.Errorf("Expected ErrEventEnded, got %v", err)
		}
	})
}

func TestRedeemInsideActivationWindow(t *testing.T) {
	db := NewMockDB()
	now := time.Now()
	// 3 hours before start: inside the 4 hour window
	seedEvent(db, now.Add(3*time.Hour), now.Add(9*time.Hour))
	svc := newTestService(db)
	ticket := seedPaidTicket(db, svc)

	if _, err := svc.Redeem(context.Background(), ticket.ID, "event-1"); err != nil {
		t.Errorf("Expected redemption inside activation window to succeed, got %v", err)
	}
}

func TestValidateDoesNotConsumeTicket(t *testing.T) {
	db := NewMockDB()
	now := time.Now()
	seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
	svc := newTestService(db)
	ticket := seedPaidTicket(db, svc)

	for i := 0; i < 3; i++ {
		got, err := svc.Validate(context.Background(), ticket.AdmissionToken, "event-1")
		if err != nil {
			t.Fatalf("Validate failed on pass %d: %v", i, err)
		}
		if got.ID != ticket.ID {
			t.Errorf("Validate returned wrong ticket: %s", got.ID)
		}
	}
	if db.tickets[ticket.ID].Redeemed {
		t.Error("Validate must not mark the ticket redeemed")
	}
}

func TestRedeemTokenRejectsForgedToken(t *testing.T) {
	db := NewMockDB()
	now := time.Now()
	seedEvent(db, now.Add(2*time.Hour), now.Add(8*time.Hour))
	svc := newTestService(db)
	seedPaidTicket(db, svc)

	_, err := svc.RedeemToken(context.Background(), "bm90LWEtdG9rZW4=", "event-1")
	if !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestActiveFrom(t *testing.T) {
	start := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	if got := ActiveFrom(start); !got.Equal(want) {
		t.Errorf("Expected ActiveFrom %v, got %v", want, got)
	}
}
