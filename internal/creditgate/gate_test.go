package creditgate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/clock"
	invoicerepo "github.com/veciapp/fiado/internal/invoice/repository"
	paymentrepo "github.com/veciapp/fiado/internal/payment/repository"
	relationshiprepo "github.com/veciapp/fiado/internal/relationship/repository"
	"github.com/veciapp/fiado/internal/storectx"
	"github.com/veciapp/fiado/pkg/money"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupGate(t *testing.T, node *snowflake.Node) (Gate, *gorm.DB) {
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

	g := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Clock:        clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Relationship: relationshiprepo.Provide(),
		Invoices:     invoicerepo.Provide(),
		Payments:     paymentrepo.Provide(),
	})

	return g, db
}

func seedRow(t *testing.T, db *gorm.DB, query string, args ...interface{}) {
	t.Helper()
	if err := db.Exec(query, args...).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestGateDeniesWithoutCredit(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	storeID := node.Generate()
	clientID := node.Generate()

	g, db := setupGate(t, node)
	ctx := storectx.WithStoreID(context.Background(), int64(storeID))
	now := time.Now().UTC()

	// Unknown client.
	decision, err := g.CanAffordCreditOrder(ctx, CheckRequest{ClientID: clientID.String(), Amount: money.MustParse("10.00")})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial for unknown client")
	}

	// Accepted but credit switched off.
	seedRow(t, db,
		`INSERT INTO relationships (id, store_id, client_id, client_email, status, allow_credit, created_at, updated_at)
		 VALUES (?, ?, ?, 'c@example.com', 'ACCEPTED', FALSE, ?, ?)`,
		node.Generate(), storeID, clientID, now, now)
	decision, err = g.CanAffordCreditOrder(ctx, CheckRequest{ClientID: clientID.String(), Amount: money.MustParse("10.00")})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial with allow_credit false")
	}
}

func TestGateComputesHeadroom(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	storeID := node.Generate()
	clientID := node.Generate()

	g, db := setupGate(t, node)
	ctx := storectx.WithStoreID(context.Background(), int64(storeID))
	now := time.Now().UTC()

	seedRow(t, db,
		`INSERT INTO relationships (id, store_id, client_id, client_email, status, allow_credit, credit_limit, created_at, updated_at)
		 VALUES (?, ?, ?, 'c@example.com', 'ACCEPTED', TRUE, ?, ?, ?)`,
		node.Generate(), storeID, clientID, int64(money.MustParse("500.00")), now, now)
	seedRow(t, db,
		`INSERT INTO invoices (id, store_id, client_id, order_id, amount, status, due_at, created_at, updated_at)
		 VALUES (?, ?, ?, 'order-1', ?, 'UNPAID', ?, ?, ?)`,
		node.Generate(), storeID, clientID, int64(money.MustParse("200.00")), now.Add(24*time.Hour), now, now)
	seedRow(t, db,
		`INSERT INTO payments (id, store_id, client_id, kind, method, amount, created_at)
		 VALUES (?, ?, ?, 'ADVANCE', 'CASH', ?, ?)`,
		node.Generate(), storeID, clientID, int64(money.MustParse("100.00")), now)

	// Headroom: 500 - 200 + 100 = 400.
	decision, err := g.CanAffordCreditOrder(ctx, CheckRequest{ClientID: clientID.String(), Amount: money.MustParse("400.00")})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected approval at exact headroom, available %s", decision.AvailableCredit)
	}
	if decision.AvailableCredit != money.MustParse("400.00") {
		t.Fatalf("expected 400.00 available, got %s", decision.AvailableCredit)
	}

	decision, err = g.CanAffordCreditOrder(ctx, CheckRequest{ClientID: clientID.String(), Amount: money.MustParse("400.01")})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial above headroom")
	}
}

func TestGateUnlimitedCredit(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	storeID := node.Generate()
	clientID := node.Generate()

	g, db := setupGate(t, node)
	ctx := storectx.WithStoreID(context.Background(), int64(storeID))
	now := time.Now().UTC()

	seedRow(t, db,
		`INSERT INTO relationships (id, store_id, client_id, client_email, status, allow_credit, credit_limit, created_at, updated_at)
		 VALUES (?, ?, ?, 'c@example.com', 'ACCEPTED', TRUE, NULL, ?, ?)`,
		node.Generate(), storeID, clientID, now, now)

	decision, err := g.CanAffordCreditOrder(ctx, CheckRequest{ClientID: clientID.String(), Amount: money.MustParse("999999.00")})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed || !decision.UnlimitedCredit {
		t.Fatalf("expected unlimited approval, got %+v", decision)
	}
}
