// Package creditgate answers one question for order placement: can this
// client fund another order on credit right now. It reads both ledgers
// and writes nothing; the gate-then-create race is an accepted trade-off
// rather than a reason for a cross-service lock.
package creditgate

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/clock"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	obsmetrics "github.com/veciapp/fiado/internal/observability/metrics"
	paymentdomain "github.com/veciapp/fiado/internal/payment/domain"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/internal/storectx"
	"github.com/veciapp/fiado/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidStore  = errors.New("invalid_store_id")
	ErrInvalidClient = errors.New("invalid_client_id")
	ErrInvalidAmount = errors.New("invalid_amount")
)

type CheckRequest struct {
	ClientID string
	Amount   money.Amount
}

// Decision carries the gate verdict plus the headroom it was based on,
// so the storefront can explain a denial.
type Decision struct {
	Allowed         bool         `json:"allowed"`
	AvailableCredit money.Amount `json:"available_credit"`
	UnlimitedCredit bool         `json:"unlimited_credit"`
}

type Gate interface {
	CanAffordCreditOrder(ctx context.Context, req CheckRequest) (Decision, error)
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Relationship relationshipdomain.Repository
	Invoices     invoicedomain.Repository
	Payments     paymentdomain.Repository
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type gate struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	relationship relationshipdomain.Repository
	invoices     invoicedomain.Repository
	payments     paymentdomain.Repository
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) Gate {
	return &gate{
		db:           p.DB,
		log:          p.Log.Named("creditgate"),
		clock:        p.Clock,
		relationship: p.Relationship,
		invoices:     p.Invoices,
		payments:     p.Payments,
		obsMetrics:   p.ObsMetrics,
	}
}

func (g *gate) CanAffordCreditOrder(ctx context.Context, req CheckRequest) (Decision, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return Decision{}, ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return Decision{}, ErrInvalidClient
	}
	if req.Amount <= 0 {
		return Decision{}, ErrInvalidAmount
	}

	var decision Decision
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		relationship, err := g.relationship.Find(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}
		if relationship == nil || !relationship.CanTransact() || !relationship.AllowCredit {
			return nil
		}
		if relationship.CreditLimit == nil {
			decision = Decision{Allowed: true, UnlimitedCredit: true}
			return nil
		}

		balanceDue, err := g.invoices.SumUnpaid(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}
		advances, err := g.payments.SumAdvances(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}
		consumed, err := g.payments.SumAdvanceConsumed(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}

		available := *relationship.CreditLimit - balanceDue + (advances - consumed)
		if available < 0 {
			available = 0
		}
		decision = Decision{
			Allowed:         available >= req.Amount,
			AvailableCredit: available,
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	if g.obsMetrics != nil {
		outcome := "denied"
		if decision.Allowed {
			outcome = "allowed"
		}
		g.obsMetrics.RecordCreditCheck(ctx, outcome)
	}

	return decision, nil
}
