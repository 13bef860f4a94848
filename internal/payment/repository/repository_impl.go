package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/payment/domain"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, storeID snowflake.ID, key string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).
		Where("store_id = ? AND idempotency_key = ?", storeID, key).
		Take(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repo) SumAdvances(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (money.Amount, error) {
	return r.sum(ctx, db,
		`SELECT COALESCE(SUM(amount), 0) FROM payments
		 WHERE store_id = ? AND client_id = ? AND kind = ?`,
		storeID, clientID, domain.PaymentKindAdvance)
}

func (r *repo) SumAdvanceConsumed(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (money.Amount, error) {
	return r.sum(ctx, db,
		`SELECT COALESCE(SUM(amount), 0) FROM payments
		 WHERE store_id = ? AND client_id = ? AND kind = ? AND method = ?`,
		storeID, clientID, domain.PaymentKindSettlement, domain.PaymentMethodAdvance)
}

func (r *repo) SumSettledForInvoice(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID) (money.Amount, error) {
	return r.sum(ctx, db,
		`SELECT COALESCE(SUM(amount), 0) FROM payments
		 WHERE store_id = ? AND invoice_id = ? AND kind = ?`,
		storeID, invoiceID, domain.PaymentKindSettlement)
}

func (r *repo) sum(ctx context.Context, db *gorm.DB, query string, args ...interface{}) (money.Amount, error) {
	var total int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&total).Error; err != nil {
		return 0, err
	}
	return money.Amount(total), nil
}

func (r *repo) ListForInvoice(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("store_id = ? AND invoice_id = ? AND kind = ?", storeID, invoiceID, domain.PaymentKindSettlement).
		Order("created_at asc, id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, filter domain.ListPaymentFilter, page pagination.Pagination) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	stmt := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("store_id = ? AND client_id = ?", storeID, clientID)
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.Method != "" {
		stmt = stmt.Where("method = ?", filter.Method)
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
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
