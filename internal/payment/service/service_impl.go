package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/cache"
	"github.com/veciapp/fiado/internal/clock"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	"github.com/veciapp/fiado/internal/locks"
	obsmetrics "github.com/veciapp/fiado/internal/observability/metrics"
	"github.com/veciapp/fiado/internal/payment/domain"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/internal/storectx"
	"github.com/veciapp/fiado/pkg/db"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	settleLockTTL      = 10 * time.Second
	settleLockAttempts = 50
	settleLockBackoff  = 20 * time.Millisecond
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Invoices     invoicedomain.Repository
	Relationship relationshipdomain.Repository
	Keyed        *locks.Keyed
	Locker       *locks.Locker `optional:"true"`
	AccountCache cache.AccountViewCache
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	invoices     invoicedomain.Repository
	relationship relationshipdomain.Repository
	keyed        *locks.Keyed
	locker       *locks.Locker
	accountCache cache.AccountViewCache
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		invoices:     p.Invoices,
		relationship: p.Relationship,
		keyed:        p.Keyed,
		locker:       p.Locker,
		accountCache: p.AccountCache,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) RecordAdvance(ctx context.Context, req domain.RecordAdvanceRequest) (domain.Payment, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Payment{}, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.Payment{}, domain.ErrInvalidClient
	}
	if req.Amount <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	if !domain.ValidMethod(req.Method) {
		return domain.Payment{}, domain.ErrInvalidMethod
	}

	relationship, err := s.relationship.Find(ctx, s.db, storeID, clientID)
	if err != nil {
		return domain.Payment{}, err
	}
	if relationship == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	if !relationship.CanTransact() {
		return domain.Payment{}, domain.ErrNotAccepted
	}

	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, storeID, key)
		if err != nil {
			return domain.Payment{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	payment := domain.Payment{
		ID:        s.genID.Generate(),
		StoreID:   storeID,
		ClientID:  clientID,
		Kind:      domain.PaymentKindAdvance,
		Method:    req.Method,
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
		Metadata:  datatypes.JSONMap{},
		CreatedAt: s.clock.Now().UTC(),
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		payment.IdempotencyKey = &key
	}

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		if payment.IdempotencyKey != nil && db.IsDuplicateKeyErr(err) {
			return s.replay(ctx, storeID, *payment.IdempotencyKey)
		}
		return domain.Payment{}, err
	}

	s.accountCache.Invalidate(storeID.String(), clientID.String())
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayment(ctx, string(domain.PaymentKindAdvance), string(req.Method))
	}
	s.log.Info("advance recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("store_id", storeID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("amount", payment.Amount.String()),
	)

	return payment, nil
}

func (s *Service) SettleInvoice(ctx context.Context, req domain.SettleInvoiceRequest) (domain.Payment, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Payment{}, domain.ErrInvalidStore
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return domain.Payment{}, domain.ErrInvalidInvoice
	}
	if req.Amount <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	if !domain.ValidMethod(req.Method) {
		return domain.Payment{}, domain.ErrInvalidMethod
	}

	// First load only learns the owning client; everything is re-checked
	// inside the transaction once the account lock is held.
	invoice, err := s.invoices.FindByID(ctx, s.db, storeID, invoiceID)
	if err != nil {
		return domain.Payment{}, err
	}
	if invoice == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	clientID := invoice.ClientID

	lockKey := accountLockKey(storeID, clientID)
	unlock := s.keyed.Lock(lockKey)
	defer unlock()

	if s.locker != nil {
		token, err := s.acquireDistributedLock(ctx, lockKey)
		if err != nil {
			return domain.Payment{}, err
		}
		defer func() {
			if err := s.locker.Release(ctx, lockKey, token); err != nil {
				s.log.Warn("settle lock release failed", zap.String("key", lockKey), zap.Error(err))
			}
		}()
	}

	var payment domain.Payment
	var settledInFull bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.invoices.FindByID(ctx, tx, storeID, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.IsPaid() {
			return domain.ErrAlreadyPaid
		}

		if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
			existing, err := s.repo.FindByIdempotencyKey(ctx, tx, storeID, key)
			if err != nil {
				return err
			}
			if existing != nil {
				payment = *existing
				return nil
			}
		}

		if req.Method == domain.PaymentMethodAdvance {
			balance, err := s.advanceBalance(ctx, tx, storeID, clientID)
			if err != nil {
				return err
			}
			if balance < req.Amount {
				return domain.ErrInsufficientAdvanceBalance
			}
		}

		settled, err := s.repo.SumSettledForInvoice(ctx, tx, storeID, invoiceID)
		if err != nil {
			return err
		}
		if settled+req.Amount > current.Amount {
			return domain.ErrOverpaymentRejected
		}

		payment = domain.Payment{
			ID:        s.genID.Generate(),
			StoreID:   storeID,
			ClientID:  clientID,
			InvoiceID: &invoiceID,
			Kind:      domain.PaymentKindSettlement,
			Method:    req.Method,
			Amount:    req.Amount,
			Reference: strings.TrimSpace(req.Reference),
			Metadata:  datatypes.JSONMap{},
			CreatedAt: s.clock.Now().UTC(),
		}
		if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
			payment.IdempotencyKey = &key
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}

		if settled+req.Amount == current.Amount {
			updated, err := s.invoices.MarkPaid(ctx, tx, storeID, invoiceID, payment.Reference, s.clock.Now().UTC())
			if err != nil {
				return err
			}
			if updated == 0 {
				return domain.ErrAlreadyPaid
			}
			settledInFull = true
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.accountCache.Invalidate(storeID.String(), clientID.String())
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayment(ctx, string(domain.PaymentKindSettlement), string(req.Method))
		if settledInFull {
			s.obsMetrics.RecordInvoiceSettled(ctx, string(req.Method))
		}
	}
	s.log.Info("invoice settlement recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", invoiceID.String()),
		zap.String("store_id", storeID.String()),
		zap.Bool("paid_in_full", settledInFull),
	)

	return payment, nil
}

func (s *Service) RecordReceipt(ctx context.Context, req domain.RecordReceiptRequest) (domain.Payment, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Payment{}, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.Payment{}, domain.ErrInvalidClient
	}
	if req.Amount <= 0 {
		return domain.Payment{}, domain.ErrInvalidAmount
	}
	// A free-standing receipt settles nothing, so it cannot consume the
	// advance balance.
	if !domain.ValidMethod(req.Method) || req.Method == domain.PaymentMethodAdvance {
		return domain.Payment{}, domain.ErrInvalidMethod
	}

	relationship, err := s.relationship.Find(ctx, s.db, storeID, clientID)
	if err != nil {
		return domain.Payment{}, err
	}
	if relationship == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	if !relationship.CanTransact() {
		return domain.Payment{}, domain.ErrNotAccepted
	}

	payment := domain.Payment{
		ID:        s.genID.Generate(),
		StoreID:   storeID,
		ClientID:  clientID,
		Kind:      domain.PaymentKindSettlement,
		Method:    req.Method,
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
		Metadata:  datatypes.JSONMap{},
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	s.accountCache.Invalidate(storeID.String(), clientID.String())
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPayment(ctx, string(domain.PaymentKindSettlement), string(req.Method))
	}

	return payment, nil
}

func (s *Service) AvailableAdvanceBalance(ctx context.Context, req domain.BalanceRequest) (money.Amount, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return 0, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return 0, domain.ErrInvalidClient
	}

	return s.advanceBalance(ctx, s.db, storeID, clientID)
}

func (s *Service) History(ctx context.Context, req domain.ListPaymentRequest) (domain.ListPaymentResponse, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.ListPaymentResponse{}, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.ListPaymentResponse{}, domain.ErrInvalidClient
	}

	filter := domain.ListPaymentFilter{}
	if kind := strings.TrimSpace(req.Kind); kind != "" {
		switch domain.PaymentKind(strings.ToUpper(kind)) {
		case domain.PaymentKindAdvance:
			filter.Kind = domain.PaymentKindAdvance
		case domain.PaymentKindSettlement:
			filter.Kind = domain.PaymentKindSettlement
		default:
			return domain.ListPaymentResponse{}, domain.ErrInvalidKind
		}
	}
	if method := strings.TrimSpace(req.Method); method != "" {
		parsed := domain.PaymentMethod(strings.ToUpper(method))
		if !domain.ValidMethod(parsed) {
			return domain.ListPaymentResponse{}, domain.ErrInvalidMethod
		}
		filter.Method = parsed
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, storeID, clientID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListPaymentResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(payment *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        payment.ID.String(),
			CreatedAt: payment.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	payments := make([]domain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}

	resp := domain.ListPaymentResponse{Payments: payments}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) advanceBalance(ctx context.Context, tx *gorm.DB, storeID, clientID snowflake.ID) (money.Amount, error) {
	advances, err := s.repo.SumAdvances(ctx, tx, storeID, clientID)
	if err != nil {
		return 0, err
	}
	consumed, err := s.repo.SumAdvanceConsumed(ctx, tx, storeID, clientID)
	if err != nil {
		return 0, err
	}
	balance := advances - consumed
	if balance < 0 {
		balance = 0
	}
	return balance, nil
}

func (s *Service) replay(ctx context.Context, storeID snowflake.ID, key string) (domain.Payment, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, storeID, key)
	if err != nil {
		return domain.Payment{}, err
	}
	if existing == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *existing, nil
}

func (s *Service) acquireDistributedLock(ctx context.Context, key string) (string, error) {
	for attempt := 0; attempt < settleLockAttempts; attempt++ {
		token, ok, err := s.locker.TryLock(ctx, key, settleLockTTL)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(settleLockBackoff):
		}
	}
	return "", fmt.Errorf("settle lock busy: %s", key)
}

func accountLockKey(storeID, clientID snowflake.ID) string {
	return storeID.String() + "|" + clientID.String()
}
