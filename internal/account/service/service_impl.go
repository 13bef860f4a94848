package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/account/domain"
	"github.com/veciapp/fiado/internal/cache"
	"github.com/veciapp/fiado/internal/clock"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	paymentdomain "github.com/veciapp/fiado/internal/payment/domain"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/internal/storectx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Relationship relationshipdomain.Repository
	Invoices     invoicedomain.Repository
	Payments     paymentdomain.Repository
	AccountCache cache.AccountViewCache
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	relationship relationshipdomain.Repository
	invoices     invoicedomain.Repository
	payments     paymentdomain.Repository
	accountCache cache.AccountViewCache
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("account.service"),
		clock:        p.Clock,
		relationship: p.Relationship,
		invoices:     p.Invoices,
		payments:     p.Payments,
		accountCache: p.AccountCache,
	}
}

// GetAccount folds both ledgers inside one transaction so the snapshot
// is internally consistent, then caches the view until the next write.
func (s *Service) GetAccount(ctx context.Context, req domain.GetAccountRequest) (domain.ClientAccount, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.ClientAccount{}, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.ClientAccount{}, domain.ErrInvalidClient
	}

	if cached, ok := s.accountCache.Get(storeID.String(), clientID.String()); ok {
		return cached, nil
	}

	var account domain.ClientAccount
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		relationship, err := s.relationship.Find(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}
		if relationship == nil {
			return domain.ErrNotFound
		}

		balanceDue, err := s.invoices.SumUnpaid(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}
		advances, err := s.payments.SumAdvances(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}
		consumed, err := s.payments.SumAdvanceConsumed(ctx, tx, storeID, clientID)
		if err != nil {
			return err
		}
		totalAdvances := advances - consumed
		if totalAdvances < 0 {
			totalAdvances = 0
		}

		account = domain.ClientAccount{
			StoreID:       storeID,
			ClientID:      clientID,
			BalanceDue:    balanceDue,
			TotalAdvances: totalAdvances,
			AllowCredit:   relationship.AllowCredit,
			CreditLimit:   relationship.CreditLimit,
			ComputedAt:    s.clock.Now().UTC(),
		}
		if relationship.CanTransact() && relationship.AllowCredit {
			if relationship.CreditLimit == nil {
				account.UnlimitedCredit = true
			} else {
				available := *relationship.CreditLimit - balanceDue + totalAdvances
				if available < 0 {
					available = 0
				}
				account.AvailableCredit = available
			}
		}
		return nil
	})
	if err != nil {
		return domain.ClientAccount{}, err
	}

	s.accountCache.Set(storeID.String(), clientID.String(), account)

	return account, nil
}
