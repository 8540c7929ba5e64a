package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tikiti/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Event)(nil), (*models.TicketTier)(nil),
		(*models.Ticket)(nil), (*models.Transaction)(nil),
		(*models.ScanAccessCode)(nil),
	} {
		if err := bunDB.ResetModel(ctx, model); err != nil {
			t.Fatalf("Failed to create tables: %v", err)
		}
	}
	return &DB{Bun: bunDB}
}

func seedTicket(t *testing.T, d *DB, status models.PaymentStatus) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{
		ID: "ticket-1", EventID: "event-1", TierID: "tier-1",
		BuyerName: "Wanjiku", BuyerPhone: "254700000001",
		TotalAmount: 520, PlatformFee: 20, HostFee: 15, NetAmount: 485,
		Status: status, Reference: "ref-1", AdmissionToken: "tok",
		CreatedAt: time.Now(),
	}
	txn := &models.Transaction{
		ID: "txn-1", TicketID: ticket.ID, EventID: ticket.EventID,
		Reference: ticket.Reference, Amount: ticket.TotalAmount,
		Status: models.StatusPending, CreatedAt: time.Now(),
	}
	if err := d.CreateTicketAndTransaction(context.Background(), ticket, txn); err != nil {
		t.Fatalf("Failed to seed ticket: %v", err)
	}
	return ticket
}

func TestCreateRejectsDuplicateReference(t *testing.T) {
	d := setupTestDB(t)
	seedTicket(t, d, models.StatusPending)

	dup := &models.Ticket{
		ID: "ticket-2", EventID: "event-1", TierID: "tier-1",
		BuyerName: "Otieno", BuyerPhone: "254700000002",
		Status: models.StatusPending, Reference: "ref-1", AdmissionToken: "tok2",
		CreatedAt: time.Now(),
	}
	txn := &models.Transaction{
		ID: "txn-2", TicketID: dup.ID, EventID: dup.EventID,
		Reference: "ref-1", Status: models.StatusPending, CreatedAt: time.Now(),
	}
	if err := d.CreateTicketAndTransaction(context.Background(), dup, txn); err == nil {
		t.Fatal("Expected unique reference constraint to reject the duplicate")
	}

	// The transaction insert failure must roll back the ticket insert too.
	if _, err := d.GetTicketByID(context.Background(), "ticket-2"); err == nil {
		t.Error("Expected rolled-back ticket to be absent")
	}
}

func TestMarkRedeemedWinsOnce(t *testing.T) {
	d := setupTestDB(t)
	ticket := seedTicket(t, d, models.StatusSuccess)
	ctx := context.Background()

	firstScan := time.Now()
	ok, err := d.MarkRedeemed(ctx, ticket.ID, firstScan)
	if err != nil {
		t.Fatalf("MarkRedeemed failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected first redeem to win")
	}

	ok, err = d.MarkRedeemed(ctx, ticket.ID, time.Now())
	if err != nil {
		t.Fatalf("MarkRedeemed failed: %v", err)
	}
	if ok {
		t.Error("Expected second redeem to lose")
	}

	fresh, err := d.GetTicketByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicketByID failed: %v", err)
	}
	if !fresh.Redeemed {
		t.Error("Expected ticket redeemed")
	}
	if fresh.RedeemedAt.Unix() != firstScan.Unix() {
		t.Errorf("Expected first scan time to stand, got %v", fresh.RedeemedAt)
	}
}

func TestMarkRedeemedRefusesUnpaidTicket(t *testing.T) {
	d := setupTestDB(t)
	ticket := seedTicket(t, d, models.StatusPending)

	ok, err := d.MarkRedeemed(context.Background(), ticket.ID, time.Now())
	if err != nil {
		t.Fatalf("MarkRedeemed failed: %v", err)
	}
	if ok {
		t.Error("Expected unpaid ticket to be unredeemable even at the CAS")
	}
}

func TestGetTicketsByPhone(t *testing.T) {
	d := setupTestDB(t)
	seedTicket(t, d, models.StatusSuccess)

	tickets, err := d.GetTicketsByPhone(context.Background(), "254700000001")
	if err != nil {
		t.Fatalf("GetTicketsByPhone failed: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("Expected one ticket, got %d", len(tickets))
	}

	tickets, err = d.GetTicketsByPhone(context.Background(), "254799999999")
	if err != nil {
		t.Fatalf("GetTicketsByPhone failed: %v", err)
	}
	if len(tickets) != 0 {
		t.Errorf("Expected no tickets for unknown phone, got %d", len(tickets))
	}
}

func TestGetAccessCodeFiltersInactive(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	codes := []models.ScanAccessCode{
		{ID: "ac-1", EventID: "event-1", Code: "GATE-A", Active: true, CreatedAt: time.Now()},
		{ID: "ac-2", EventID: "event-1", Code: "GATE-B", Active: false, CreatedAt: time.Now()},
	}
	if _, err := d.Bun.NewInsert().Model(&codes).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed access codes: %v", err)
	}
	// bun inserts the column default in place of zero values, so the
	// revoked row's active=false must be written explicitly.
	if _, err := d.Bun.NewUpdate().
		Model((*models.ScanAccessCode)(nil)).
		Set("active = ?", false).
		Where("id = ?", "ac-2").
		Exec(ctx); err != nil {
		t.Fatalf("Failed to revoke access code: %v", err)
	}

	access, err := d.GetAccessCode(ctx, "GATE-A")
	if err != nil {
		t.Fatalf("GetAccessCode failed: %v", err)
	}
	if access.EventID != "event-1" {
		t.Errorf("Expected event-1, got %s", access.EventID)
	}

	if _, err := d.GetAccessCode(ctx, "GATE-B"); err == nil {
		t.Error("Expected revoked code to be rejected")
	}
}
