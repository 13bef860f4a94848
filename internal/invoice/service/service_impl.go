package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/cache"
	"github.com/veciapp/fiado/internal/clock"
	"github.com/veciapp/fiado/internal/config"
	"github.com/veciapp/fiado/internal/invoice/domain"
	obsmetrics "github.com/veciapp/fiado/internal/observability/metrics"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/internal/storectx"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Relationship relationshipdomain.Repository
	Policy       *config.CreditPolicyHolder
	AccountCache cache.AccountViewCache
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	relationship relationshipdomain.Repository
	policy       *config.CreditPolicyHolder
	accountCache cache.AccountViewCache
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		relationship: p.Relationship,
		policy:       p.Policy,
		accountCache: p.AccountCache,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Invoice{}, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.Invoice{}, domain.ErrInvalidClient
	}
	if req.Amount <= 0 {
		return domain.Invoice{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now().UTC()
	if !req.DueAt.After(now) {
		return domain.Invoice{}, domain.ErrInvalidDueDate
	}

	relationship, err := s.relationship.Find(ctx, s.db, storeID, clientID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if relationship == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	if !relationship.CanTransact() {
		return domain.Invoice{}, domain.ErrNotAccepted
	}
	// Affordability is the credit gate's concern before order placement;
	// the ledger only enforces the credit switch itself.
	if req.CreditFunded && !relationship.AllowCredit {
		return domain.Invoice{}, domain.ErrCreditNotAuthorized
	}

	invoice := domain.Invoice{
		ID:           s.genID.Generate(),
		StoreID:      storeID,
		ClientID:     clientID,
		OrderID:      strings.TrimSpace(req.OrderID),
		Amount:       req.Amount,
		Status:       domain.InvoiceStatusUnpaid,
		CreditFunded: req.CreditFunded,
		DueAt:        req.DueAt.UTC(),
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &invoice); err != nil {
		return domain.Invoice{}, err
	}

	s.accountCache.Invalidate(storeID.String(), clientID.String())
	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvoiceCreated(ctx)
	}
	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("store_id", storeID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("amount", invoice.Amount.String()),
	)

	return invoice, nil
}

func (s *Service) MarkPaidDirect(ctx context.Context, req domain.MarkPaidDirectRequest) (domain.Invoice, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Invoice{}, domain.ErrInvalidStore
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return domain.Invoice{}, domain.ErrInvalidInvoice
	}

	now := s.clock.Now().UTC()
	updated, err := s.repo.MarkPaid(ctx, s.db, storeID, invoiceID, strings.TrimSpace(req.Reference), now)
	if err != nil {
		return domain.Invoice{}, err
	}
	if updated == 0 {
		existing, err := s.repo.FindByID(ctx, s.db, storeID, invoiceID)
		if err != nil {
			return domain.Invoice{}, err
		}
		if existing == nil {
			return domain.Invoice{}, domain.ErrNotFound
		}
		// A second call on a PAID invoice is an error, not a no-op.
		return domain.Invoice{}, domain.ErrAlreadyPaid
	}

	invoice, err := s.repo.FindByID(ctx, s.db, storeID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	s.accountCache.Invalidate(storeID.String(), invoice.ClientID.String())
	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvoiceSettled(ctx, "direct")
	}
	s.log.Info("invoice paid direct",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("store_id", storeID.String()),
	)

	return *invoice, nil
}

func (s *Service) Get(ctx context.Context, req domain.GetInvoiceRequest) (domain.Invoice, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Invoice{}, domain.ErrInvalidStore
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil || invoiceID == 0 {
		return domain.Invoice{}, domain.ErrInvalidInvoice
	}

	invoice, err := s.repo.FindByID(ctx, s.db, storeID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidClient
	}

	filter := domain.ListInvoiceFilter{}
	if status := strings.TrimSpace(req.Status); status != "" {
		switch domain.InvoiceStatus(strings.ToUpper(status)) {
		case domain.InvoiceStatusUnpaid:
			filter.Status = domain.InvoiceStatusUnpaid
		case domain.InvoiceStatusPaid:
			filter.Status = domain.InvoiceStatusPaid
		default:
			return domain.ListInvoiceResponse{}, domain.ErrInvalidStatus
		}
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
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) ComputeOverdue(ctx context.Context, req domain.ComputeOverdueRequest) ([]domain.OverdueInvoice, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return nil, domain.ErrInvalidStore
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return nil, domain.ErrInvalidClient
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	asOf = asOf.UTC()

	items, err := s.repo.ListOverdue(ctx, s.db, storeID, clientID, asOf)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	overdue := make([]domain.OverdueInvoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		days := int(asOf.Sub(item.DueAt.UTC()).Hours() / 24)
		overdue = append(overdue, domain.OverdueInvoice{
			Invoice:     *item,
			DaysOverdue: days,
			AgingBucket: policy.BucketFor(days),
		})
	}

	return overdue, nil
}
