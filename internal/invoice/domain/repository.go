package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/gorm"
)

// Repository persists invoice rows. Implementations are stateless; the
// caller supplies the db handle so operations can join an open transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID) (*Invoice, error)
	// MarkPaid flips UNPAID to PAID and reports the rows affected. A zero
	// count means the row was missing or already PAID.
	MarkPaid(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID, reference string, paidAt time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, filter ListInvoiceFilter, page pagination.Pagination) ([]*Invoice, error)
	// SumUnpaid returns the total amount of UNPAID invoices for the account.
	SumUnpaid(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (money.Amount, error)
	ListOverdue(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, asOf time.Time) ([]*Invoice, error)
}
