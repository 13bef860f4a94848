package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/cache"
	"github.com/veciapp/fiado/internal/clock"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	invoicerepo "github.com/veciapp/fiado/internal/invoice/repository"
	"github.com/veciapp/fiado/internal/locks"
	"github.com/veciapp/fiado/internal/payment/domain"
	paymentrepo "github.com/veciapp/fiado/internal/payment/repository"
	relationshiprepo "github.com/veciapp/fiado/internal/relationship/repository"
	"github.com/veciapp/fiado/internal/storectx"
	"github.com/veciapp/fiado/pkg/money"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPaymentService(t *testing.T, node *snowflake.Node, clk clock.Clock) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	preparePaymentSchema(t, db)

	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Repo:         paymentrepo.Provide(),
		Invoices:     invoicerepo.Provide(),
		Relationship: relationshiprepo.Provide(),
		Keyed:        locks.NewKeyed(),
		AccountCache: cache.NewAccountViewCache(),
	})

	return svc, db
}

func preparePaymentSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE relationships (
		id BIGINT PRIMARY KEY,
		store_id BIGINT NOT NULL,
		client_id BIGINT NOT NULL,
		client_email TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		allow_credit BOOLEAN NOT NULL DEFAULT FALSE,
		credit_limit BIGINT,
		metadata JSON,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		responded_at DATETIME
	)`).Error; err != nil {
		t.Fatalf("create relationships: %v", err)
	}
	if err := db.Exec(`CREATE TABLE invoices (
		id BIGINT PRIMARY KEY,
		store_id BIGINT NOT NULL,
		client_id BIGINT NOT NULL,
		order_id TEXT NOT NULL,
		amount BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'UNPAID',
		credit_funded BOOLEAN NOT NULL DEFAULT FALSE,
		due_at DATETIME NOT NULL,
		paid_at DATETIME,
		payment_reference TEXT,
		metadata JSON,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create invoices: %v", err)
	}
	if err := db.Exec(`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		store_id BIGINT NOT NULL,
		client_id BIGINT NOT NULL,
		invoice_id BIGINT,
		kind TEXT NOT NULL,
		method TEXT NOT NULL,
		amount BIGINT NOT NULL,
		reference TEXT,
		idempotency_key TEXT,
		metadata JSON,
		created_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create payments: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_payments_store_idempotency
		ON payments (store_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL`).Error; err != nil {
		t.Fatalf("create payments index: %v", err)
	}
}

func seedAcceptedRelationship(t *testing.T, db *gorm.DB, node *snowflake.Node, storeID, clientID snowflake.ID) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO relationships (id, store_id, client_id, client_email, status, allow_credit, created_at, updated_at, responded_at)
		 VALUES (?, ?, ?, ?, 'ACCEPTED', TRUE, ?, ?, ?)`,
		node.Generate(), storeID, clientID, "client@example.com", now, now, now,
	).Error; err != nil {
		t.Fatalf("seed relationship: %v", err)
	}
}

func seedInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, storeID, clientID snowflake.ID, amount money.Amount) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO invoices (id, store_id, client_id, order_id, amount, status, due_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'UNPAID', ?, ?, ?)`,
		id, storeID, clientID, "order-"+id.String(), int64(amount), now.Add(14*24*time.Hour), now, now,
	).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return id
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func storeContext(storeID snowflake.ID) context.Context {
	return storectx.WithStoreID(context.Background(), int64(storeID))
}

func invoiceStatus(t *testing.T, db *gorm.DB, invoiceID snowflake.ID) invoicedomain.InvoiceStatus {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM invoices WHERE id = ?`, invoiceID).Scan(&status).Error; err != nil {
		t.Fatalf("invoice status: %v", err)
	}
	return invoicedomain.InvoiceStatus(status)
}

func TestRecordAdvanceRequiresAccepted(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)

	req := domain.RecordAdvanceRequest{
		ClientID: clientID.String(),
		Amount:   money.MustParse("100.00"),
		Method:   domain.PaymentMethodCash,
	}
	if _, err := svc.RecordAdvance(ctx, req); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found without relationship, got %v", err)
	}

	seedAcceptedRelationship(t, db, node, storeID, clientID)
	payment, err := svc.RecordAdvance(ctx, req)
	if err != nil {
		t.Fatalf("record advance: %v", err)
	}
	if payment.Kind != domain.PaymentKindAdvance {
		t.Fatalf("expected ADVANCE, got %s", payment.Kind)
	}

	balance, err := svc.AvailableAdvanceBalance(ctx, domain.BalanceRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != money.MustParse("100.00") {
		t.Fatalf("expected 100.00 balance, got %s", balance)
	}
}

func TestSettleInvoicePartialThenFull(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)
	invoiceID := seedInvoice(t, db, node, storeID, clientID, money.MustParse("200.00"))

	if _, err := svc.RecordAdvance(ctx, domain.RecordAdvanceRequest{
		ClientID: clientID.String(),
		Amount:   money.MustParse("100.00"),
		Method:   domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("record advance: %v", err)
	}

	if _, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
		InvoiceID: invoiceID.String(),
		Amount:    money.MustParse("100.00"),
		Method:    domain.PaymentMethodAdvance,
	}); err != nil {
		t.Fatalf("settle with advance: %v", err)
	}
	if status := invoiceStatus(t, db, invoiceID); status != invoicedomain.InvoiceStatusUnpaid {
		t.Fatalf("expected UNPAID after partial settlement, got %s", status)
	}

	balance, err := svc.AvailableAdvanceBalance(ctx, domain.BalanceRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected advance fully consumed, got %s", balance)
	}

	if _, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
		InvoiceID: invoiceID.String(),
		Amount:    money.MustParse("100.00"),
		Method:    domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("settle with cash: %v", err)
	}
	if status := invoiceStatus(t, db, invoiceID); status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("expected PAID after full settlement, got %s", status)
	}

	if _, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
		InvoiceID: invoiceID.String(),
		Amount:    money.MustParse("1.00"),
		Method:    domain.PaymentMethodCash,
	}); !errors.Is(err, domain.ErrAlreadyPaid) {
		t.Fatalf("expected already paid, got %v", err)
	}
}

func TestSettleInvoiceInsufficientAdvance(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)
	invoiceID := seedInvoice(t, db, node, storeID, clientID, money.MustParse("200.00"))

	_, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
		InvoiceID: invoiceID.String(),
		Amount:    money.MustParse("50.00"),
		Method:    domain.PaymentMethodAdvance,
	})
	if !errors.Is(err, domain.ErrInsufficientAdvanceBalance) {
		t.Fatalf("expected insufficient advance balance, got %v", err)
	}
}

func TestSettleInvoiceOverpaymentRejected(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)
	invoiceID := seedInvoice(t, db, node, storeID, clientID, money.MustParse("100.00"))

	if _, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
		InvoiceID: invoiceID.String(),
		Amount:    money.MustParse("60.00"),
		Method:    domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("first settlement: %v", err)
	}

	_, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
		InvoiceID: invoiceID.String(),
		Amount:    money.MustParse("60.00"),
		Method:    domain.PaymentMethodCash,
	})
	if !errors.Is(err, domain.ErrOverpaymentRejected) {
		t.Fatalf("expected overpayment rejected, got %v", err)
	}
	if status := invoiceStatus(t, db, invoiceID); status != invoicedomain.InvoiceStatusUnpaid {
		t.Fatalf("expected invoice to stay UNPAID, got %s", status)
	}
}

func TestSettleInvoiceConcurrentAdvance(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)
	invoiceID := seedInvoice(t, db, node, storeID, clientID, money.MustParse("200.00"))

	if _, err := svc.RecordAdvance(ctx, domain.RecordAdvanceRequest{
		ClientID: clientID.String(),
		Amount:   money.MustParse("100.00"),
		Method:   domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("record advance: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
				InvoiceID: invoiceID.String(),
				Amount:    money.MustParse("60.00"),
				Method:    domain.PaymentMethodAdvance,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientAdvanceBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success and one insufficient, got %d/%d", succeeded, insufficient)
	}

	balance, err := svc.AvailableAdvanceBalance(ctx, domain.BalanceRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != money.MustParse("40.00") {
		t.Fatalf("expected 40.00 remaining, got %s", balance)
	}
}

func TestSettleInvoiceIdempotencyReplay(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)
	invoiceID := seedInvoice(t, db, node, storeID, clientID, money.MustParse("200.00"))

	req := domain.SettleInvoiceRequest{
		InvoiceID:      invoiceID.String(),
		Amount:         money.MustParse("50.00"),
		Method:         domain.PaymentMethodCash,
		IdempotencyKey: "settle-retry-1",
	}
	first, err := svc.SettleInvoice(ctx, req)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	second, err := svc.SettleInvoice(ctx, req)
	if err != nil {
		t.Fatalf("replayed settle: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected replay to return original payment, got %s vs %s", first.ID, second.ID)
	}

	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM payments`).Scan(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 payment row, got %d", count)
	}
}

func TestRecordAdvanceIdempotencyReplay(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)

	req := domain.RecordAdvanceRequest{
		ClientID:       clientID.String(),
		Amount:         money.MustParse("75.00"),
		Method:         domain.PaymentMethodTransfer,
		IdempotencyKey: "advance-retry-1",
	}
	first, err := svc.RecordAdvance(ctx, req)
	if err != nil {
		t.Fatalf("first advance: %v", err)
	}
	second, err := svc.RecordAdvance(ctx, req)
	if err != nil {
		t.Fatalf("replayed advance: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected replay to return original payment, got %s vs %s", first.ID, second.ID)
	}

	balance, err := svc.AvailableAdvanceBalance(ctx, domain.BalanceRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != money.MustParse("75.00") {
		t.Fatalf("expected single advance of 75.00, got %s", balance)
	}
}

func TestHistoryFiltersAndReceipts(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)
	invoiceID := seedInvoice(t, db, node, storeID, clientID, money.MustParse("200.00"))

	if _, err := svc.RecordAdvance(ctx, domain.RecordAdvanceRequest{
		ClientID: clientID.String(),
		Amount:   money.MustParse("100.00"),
		Method:   domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("record advance: %v", err)
	}
	clk.Advance(time.Minute)
	if _, err := svc.SettleInvoice(ctx, domain.SettleInvoiceRequest{
		InvoiceID: invoiceID.String(),
		Amount:    money.MustParse("50.00"),
		Method:    domain.PaymentMethodCard,
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	clk.Advance(time.Minute)
	receipt, err := svc.RecordReceipt(ctx, domain.RecordReceiptRequest{
		ClientID: clientID.String(),
		Amount:   money.MustParse("20.00"),
		Method:   domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("record receipt: %v", err)
	}
	if receipt.InvoiceID != nil {
		t.Fatal("expected free-standing receipt without invoice")
	}

	all, err := svc.History(ctx, domain.ListPaymentRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all.Payments) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(all.Payments))
	}
	if all.Payments[0].ID != receipt.ID {
		t.Fatalf("expected newest first, got %s", all.Payments[0].ID)
	}

	advances, err := svc.History(ctx, domain.ListPaymentRequest{ClientID: clientID.String(), Kind: "advance"})
	if err != nil {
		t.Fatalf("history advances: %v", err)
	}
	if len(advances.Payments) != 1 || advances.Payments[0].Kind != domain.PaymentKindAdvance {
		t.Fatalf("expected only the advance, got %d", len(advances.Payments))
	}

	cash, err := svc.History(ctx, domain.ListPaymentRequest{ClientID: clientID.String(), Method: "cash"})
	if err != nil {
		t.Fatalf("history cash: %v", err)
	}
	if len(cash.Payments) != 2 {
		t.Fatalf("expected 2 cash payments, got %d", len(cash.Payments))
	}

	// Free-standing receipts never count against invoice math.
	settled, err := paymentrepo.Provide().SumSettledForInvoice(ctx, db, storeID, invoiceID)
	if err != nil {
		t.Fatalf("sum settled: %v", err)
	}
	if settled != money.MustParse("50.00") {
		t.Fatalf("expected 50.00 settled on invoice, got %s", settled)
	}
}

func TestRecordReceiptRejectsAdvanceMethod(t *testing.T) {
	node := mustNode(t)
	storeID := node.Generate()
	clientID := node.Generate()

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupPaymentService(t, node, clk)
	ctx := storeContext(storeID)
	seedAcceptedRelationship(t, db, node, storeID, clientID)

	_, err := svc.RecordReceipt(ctx, domain.RecordReceiptRequest{
		ClientID: clientID.String(),
		Amount:   money.MustParse("10.00"),
		Method:   domain.PaymentMethodAdvance,
	})
	if !errors.Is(err, domain.ErrInvalidMethod) {
		t.Fatalf("expected invalid method, got %v", err)
	}
}
