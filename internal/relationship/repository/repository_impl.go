package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, relationship *domain.Relationship) error {
	return db.WithContext(ctx).Create(relationship).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (*domain.Relationship, error) {
	var relationship domain.Relationship
	err := db.WithContext(ctx).
		Where("store_id = ? AND client_id = ?", storeID, clientID).
		Take(&relationship).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &relationship, nil
}

func (r *repo) Respond(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, to domain.RelationshipStatus, respondedAt time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE relationships
		 SET status = ?, responded_at = ?, updated_at = ?
		 WHERE store_id = ? AND client_id = ? AND status = ?`,
		to,
		respondedAt,
		respondedAt,
		storeID,
		clientID,
		domain.RelationshipStatusPending,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) UpdateCredit(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, allowCredit bool, creditLimit *int64, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE relationships
		 SET allow_credit = ?, credit_limit = ?, updated_at = ?
		 WHERE store_id = ? AND client_id = ?`,
		allowCredit,
		creditLimit,
		updatedAt,
		storeID,
		clientID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, storeID snowflake.ID, filter domain.ListRelationshipFilter, page pagination.Pagination) ([]*domain.Relationship, error) {
	var relationships []*domain.Relationship
	stmt := db.WithContext(ctx).
		Model(&domain.Relationship{}).
		Where("store_id = ?", storeID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("created_at < ?", createdAt)
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 50
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&relationships).Error
	if err != nil {
		return nil, err
	}
	return relationships, nil
}
