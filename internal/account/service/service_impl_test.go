package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/account/domain"
	"github.com/veciapp/fiado/internal/cache"
	"github.com/veciapp/fiado/internal/clock"
	"github.com/veciapp/fiado/internal/config"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	invoicerepo "github.com/veciapp/fiado/internal/invoice/repository"
	invoicesvc "github.com/veciapp/fiado/internal/invoice/service"
	"github.com/veciapp/fiado/internal/locks"
	paymentdomain "github.com/veciapp/fiado/internal/payment/domain"
	paymentrepo "github.com/veciapp/fiado/internal/payment/repository"
	paymentsvc "github.com/veciapp/fiado/internal/payment/service"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	relationshiprepo "github.com/veciapp/fiado/internal/relationship/repository"
	relationshipsvc "github.com/veciapp/fiado/internal/relationship/service"
	"github.com/veciapp/fiado/internal/storectx"
	"github.com/veciapp/fiado/pkg/money"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ledgerFixture struct {
	relationships relationshipdomain.Service
	invoices      invoicedomain.Service
	payments      paymentdomain.Service
	accounts      domain.Service
	db            *gorm.DB
	clock         *clock.FakeClock
	node          *snowflake.Node
}

func setupLedger(t *testing.T) *ledgerFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

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
	prepareLedgerSchema(t, db)

	accountCache := cache.NewAccountViewCache()
	relationshipRepo := relationshiprepo.Provide()
	invoiceRepo := invoicerepo.Provide()
	paymentRepo := paymentrepo.Provide()
	log := zap.NewNop()

	relationships := relationshipsvc.New(relationshipsvc.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  relationshipRepo,
	})
	invoices := invoicesvc.New(invoicesvc.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         invoiceRepo,
		Relationship: relationshipRepo,
		Policy:       config.NewStaticCreditPolicyHolder(config.DefaultCreditPolicy()),
		AccountCache: accountCache,
	})
	payments := paymentsvc.New(paymentsvc.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         paymentRepo,
		Invoices:     invoiceRepo,
		Relationship: relationshipRepo,
		Keyed:        locks.NewKeyed(),
		AccountCache: accountCache,
	})
	accounts := New(Params{
		DB:           db,
		Log:          log,
		Clock:        clk,
		Relationship: relationshipRepo,
		Invoices:     invoiceRepo,
		Payments:     paymentRepo,
		AccountCache: accountCache,
	})

	return &ledgerFixture{
		relationships: relationships,
		invoices:      invoices,
		payments:      payments,
		accounts:      accounts,
		db:            db,
		clock:         clk,
		node:          node,
	}
}

func prepareLedgerSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE relationships (
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
		)`,
		`CREATE UNIQUE INDEX ux_relationships_store_client ON relationships (store_id, client_id)`,
		`CREATE TABLE invoices (
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
		)`,
		`CREATE TABLE payments (
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
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func (f *ledgerFixture) onboard(t *testing.T, ctx context.Context, clientID snowflake.ID, creditLimit string) {
	t.Helper()
	if _, err := f.relationships.Invite(ctx, relationshipdomain.InviteRequest{
		ClientID:    clientID.String(),
		ClientEmail: "client@example.com",
	}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := f.relationships.Accept(ctx, relationshipdomain.RespondRequest{ClientID: clientID.String()}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	req := relationshipdomain.SetCreditRequest{ClientID: clientID.String(), AllowCredit: true}
	if creditLimit != "" {
		limit := money.MustParse(creditLimit)
		req.CreditLimit = &limit
	}
	if _, err := f.relationships.SetCredit(ctx, req); err != nil {
		t.Fatalf("set credit: %v", err)
	}
}

func TestAccountFoldsBothLedgers(t *testing.T) {
	f := setupLedger(t)
	storeID := f.node.Generate()
	clientID := f.node.Generate()
	ctx := storectx.WithStoreID(context.Background(), int64(storeID))

	f.onboard(t, ctx, clientID, "500.00")

	invoice, err := f.invoices.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID:     clientID.String(),
		OrderID:      "order-1",
		Amount:       money.MustParse("200.00"),
		DueAt:        f.clock.Now().Add(14 * 24 * time.Hour),
		CreditFunded: true,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	account, err := f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.BalanceDue != money.MustParse("200.00") {
		t.Fatalf("expected balance due 200.00, got %s", account.BalanceDue)
	}
	if account.AvailableCredit != money.MustParse("300.00") {
		t.Fatalf("expected available credit 300.00, got %s", account.AvailableCredit)
	}

	if _, err := f.payments.RecordAdvance(ctx, paymentdomain.RecordAdvanceRequest{
		ClientID: clientID.String(),
		Amount:   money.MustParse("100.00"),
		Method:   paymentdomain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("record advance: %v", err)
	}

	account, err = f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("get account after advance: %v", err)
	}
	if account.TotalAdvances != money.MustParse("100.00") {
		t.Fatalf("expected total advances 100.00, got %s", account.TotalAdvances)
	}
	if account.AvailableCredit != money.MustParse("400.00") {
		t.Fatalf("expected available credit 400.00, got %s", account.AvailableCredit)
	}

	if _, err := f.payments.SettleInvoice(ctx, paymentdomain.SettleInvoiceRequest{
		InvoiceID: invoice.ID.String(),
		Amount:    money.MustParse("100.00"),
		Method:    paymentdomain.PaymentMethodAdvance,
	}); err != nil {
		t.Fatalf("settle with advance: %v", err)
	}
	if _, err := f.payments.SettleInvoice(ctx, paymentdomain.SettleInvoiceRequest{
		InvoiceID: invoice.ID.String(),
		Amount:    money.MustParse("100.00"),
		Method:    paymentdomain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("settle with cash: %v", err)
	}

	account, err = f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("get account after settlement: %v", err)
	}
	if account.BalanceDue != 0 {
		t.Fatalf("expected zero balance due, got %s", account.BalanceDue)
	}
	if account.TotalAdvances != 0 {
		t.Fatalf("expected advances consumed, got %s", account.TotalAdvances)
	}
}

func TestAccountUnlimitedCredit(t *testing.T) {
	f := setupLedger(t)
	storeID := f.node.Generate()
	clientID := f.node.Generate()
	ctx := storectx.WithStoreID(context.Background(), int64(storeID))

	f.onboard(t, ctx, clientID, "")

	account, err := f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !account.UnlimitedCredit {
		t.Fatal("expected unlimited credit when no limit is set")
	}
	if account.CreditLimit != nil {
		t.Fatalf("expected nil credit limit, got %v", account.CreditLimit)
	}
}

func TestAccountUnknownRelationship(t *testing.T) {
	f := setupLedger(t)
	storeID := f.node.Generate()
	ctx := storectx.WithStoreID(context.Background(), int64(storeID))

	_, err := f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: f.node.Generate().String()})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccountCacheInvalidatedOnWrite(t *testing.T) {
	f := setupLedger(t)
	storeID := f.node.Generate()
	clientID := f.node.Generate()
	ctx := storectx.WithStoreID(context.Background(), int64(storeID))

	f.onboard(t, ctx, clientID, "500.00")

	before, err := f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if before.BalanceDue != 0 {
		t.Fatalf("expected empty balance, got %s", before.BalanceDue)
	}

	// A second read with no intervening write is served from cache.
	cached, err := f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("cached read: %v", err)
	}
	if !cached.ComputedAt.Equal(before.ComputedAt) {
		t.Fatal("expected cached snapshot on repeat read")
	}

	f.clock.Advance(time.Minute)
	if _, err := f.invoices.Create(ctx, invoicedomain.CreateInvoiceRequest{
		ClientID: clientID.String(),
		OrderID:  "order-cache",
		Amount:   money.MustParse("50.00"),
		DueAt:    f.clock.Now().Add(24 * time.Hour),
	}); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	after, err := f.accounts.GetAccount(ctx, domain.GetAccountRequest{ClientID: clientID.String()})
	if err != nil {
		t.Fatalf("get account after write: %v", err)
	}
	if after.BalanceDue != money.MustParse("50.00") {
		t.Fatalf("expected refreshed balance 50.00, got %s", after.BalanceDue)
	}
}
