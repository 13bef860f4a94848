package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/gorm"
)

// Repository persists payment rows. Stateless; the caller supplies the db
// handle so sums and inserts can share one open transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, storeID snowflake.ID, key string) (*Payment, error)
	// SumAdvances returns the total of ADVANCE rows for the account.
	SumAdvances(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (money.Amount, error)
	// SumAdvanceConsumed returns the total of SETTLEMENT rows paid with
	// method ADVANCE for the account.
	SumAdvanceConsumed(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (money.Amount, error)
	// SumSettledForInvoice returns the cumulative SETTLEMENT total applied
	// to one invoice.
	SumSettledForInvoice(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID) (money.Amount, error)
	List(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, filter ListPaymentFilter, page pagination.Pagination) ([]*Payment, error)
	// ListForInvoice returns the SETTLEMENT rows applied to one invoice,
	// oldest first.
	ListForInvoice(ctx context.Context, db *gorm.DB, storeID, invoiceID snowflake.ID) ([]*Payment, error)
}
