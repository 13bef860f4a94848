package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/veciapp/fiado/internal/observability/metrics"
	"github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/internal/storectx"
	"github.com/veciapp/fiado/pkg/db"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("relationship.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Invite(ctx context.Context, req domain.InviteRequest) (domain.Relationship, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Relationship{}, domain.ErrInvalidStore
	}

	clientID, err := parseID(req.ClientID)
	if err != nil {
		return domain.Relationship{}, err
	}

	email := strings.TrimSpace(req.ClientEmail)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Relationship{}, domain.ErrInvalidEmail
	}

	existing, err := s.repo.Find(ctx, s.db, storeID, clientID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if existing != nil {
		// One row ever per pair; a rejected pair cannot be re-invited.
		return domain.Relationship{}, domain.ErrDuplicateInvitation
	}

	now := time.Now().UTC()
	relationship := domain.Relationship{
		ID:          s.genID.Generate(),
		StoreID:     storeID,
		ClientID:    clientID,
		ClientEmail: email,
		Status:      domain.RelationshipStatusPending,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &relationship); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Relationship{}, domain.ErrDuplicateInvitation
		}
		return domain.Relationship{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvitation(ctx, "invited")
	}
	s.log.Info("client invited",
		zap.String("store_id", storeID.String()),
		zap.String("client_id", clientID.String()),
	)

	return relationship, nil
}

func (s *Service) Accept(ctx context.Context, req domain.RespondRequest) (domain.Relationship, error) {
	return s.respond(ctx, req, domain.RelationshipStatusAccepted)
}

func (s *Service) Reject(ctx context.Context, req domain.RespondRequest) (domain.Relationship, error) {
	return s.respond(ctx, req, domain.RelationshipStatusRejected)
}

func (s *Service) respond(ctx context.Context, req domain.RespondRequest, to domain.RelationshipStatus) (domain.Relationship, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Relationship{}, domain.ErrInvalidStore
	}

	clientID, err := parseID(req.ClientID)
	if err != nil {
		return domain.Relationship{}, err
	}

	now := time.Now().UTC()
	updated, err := s.repo.Respond(ctx, s.db, storeID, clientID, to, now)
	if err != nil {
		return domain.Relationship{}, err
	}
	if updated == 0 {
		existing, err := s.repo.Find(ctx, s.db, storeID, clientID)
		if err != nil {
			return domain.Relationship{}, err
		}
		if existing == nil {
			return domain.Relationship{}, domain.ErrNotFound
		}
		return domain.Relationship{}, domain.ErrInvalidTransition
	}

	relationship, err := s.repo.Find(ctx, s.db, storeID, clientID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if relationship == nil {
		return domain.Relationship{}, domain.ErrNotFound
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordInvitation(ctx, strings.ToLower(string(to)))
	}

	return *relationship, nil
}

func (s *Service) SetCredit(ctx context.Context, req domain.SetCreditRequest) (domain.Relationship, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Relationship{}, domain.ErrInvalidStore
	}

	clientID, err := parseID(req.ClientID)
	if err != nil {
		return domain.Relationship{}, err
	}

	if req.CreditLimit != nil && *req.CreditLimit < 0 {
		return domain.Relationship{}, domain.ErrInvalidCreditLimit
	}

	existing, err := s.repo.Find(ctx, s.db, storeID, clientID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if existing == nil {
		return domain.Relationship{}, domain.ErrNotFound
	}
	if !existing.CanTransact() {
		return domain.Relationship{}, domain.ErrNotAccepted
	}

	var limit *int64
	if req.CreditLimit != nil {
		value := int64(*req.CreditLimit)
		limit = &value
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateCredit(ctx, s.db, storeID, clientID, req.AllowCredit, limit, now); err != nil {
		return domain.Relationship{}, err
	}

	existing.AllowCredit = req.AllowCredit
	existing.CreditLimit = req.CreditLimit
	existing.UpdatedAt = now

	return *existing, nil
}

func (s *Service) Get(ctx context.Context, req domain.GetRequest) (domain.Relationship, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.Relationship{}, domain.ErrInvalidStore
	}

	clientID, err := parseID(req.ClientID)
	if err != nil {
		return domain.Relationship{}, err
	}

	relationship, err := s.repo.Find(ctx, s.db, storeID, clientID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if relationship == nil {
		return domain.Relationship{}, domain.ErrNotFound
	}

	return *relationship, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRelationshipRequest) (domain.ListRelationshipResponse, error) {
	storeID, ok := storectx.StoreIDFromContext(ctx)
	if !ok || storeID == 0 {
		return domain.ListRelationshipResponse{}, domain.ErrInvalidStore
	}

	filter := domain.ListRelationshipFilter{}
	if status := strings.TrimSpace(req.Status); status != "" {
		parsed, err := parseStatus(status)
		if err != nil {
			return domain.ListRelationshipResponse{}, err
		}
		filter.Status = parsed
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, storeID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListRelationshipResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(relationship *domain.Relationship) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        relationship.ID.String(),
			CreatedAt: relationship.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	relationships := make([]domain.Relationship, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		relationships = append(relationships, *item)
	}

	resp := domain.ListRelationshipResponse{Relationships: relationships}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidClient
	}
	return id, nil
}

func parseStatus(value string) (domain.RelationshipStatus, error) {
	switch domain.RelationshipStatus(strings.ToUpper(value)) {
	case domain.RelationshipStatusPending:
		return domain.RelationshipStatusPending, nil
	case domain.RelationshipStatusAccepted:
		return domain.RelationshipStatusAccepted, nil
	case domain.RelationshipStatusRejected:
		return domain.RelationshipStatusRejected, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}
