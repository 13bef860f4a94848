package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/invoice/domain"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Where("store_id = ? AND id = ?", storeID, invoiceID).
		Take(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID, reference string, paidAt time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, paid_at = ?, payment_reference = ?, updated_at = ?
		 WHERE store_id = ? AND id = ? AND status = ?`,
		domain.InvoiceStatusPaid,
		paidAt,
		reference,
		paidAt,
		storeID,
		invoiceID,
		domain.InvoiceStatusUnpaid,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, filter domain.ListInvoiceFilter, page pagination.Pagination) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("store_id = ? AND client_id = ?", storeID, clientID)
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
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) SumUnpaid(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (money.Amount, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM invoices
		 WHERE store_id = ? AND client_id = ? AND status = ?`,
		storeID, clientID, domain.InvoiceStatusUnpaid,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return money.Amount(total), nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, asOf time.Time) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("store_id = ? AND client_id = ? AND status = ? AND due_at < ?",
			storeID, clientID, domain.InvoiceStatusUnpaid, asOf).
		Order("due_at asc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
