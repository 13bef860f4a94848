// Package domain contains persistence models for the payment and advance
// ledger. Payment rows are append-only.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/datatypes"
)

// PaymentKind distinguishes prepayments from invoice settlements.
type PaymentKind string

const (
	PaymentKindAdvance    PaymentKind = "ADVANCE"
	PaymentKindSettlement PaymentKind = "SETTLEMENT"
)

// PaymentMethod is how the money moved.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodAdvance  PaymentMethod = "ADVANCE"
)

// Payment is one ledger row. SETTLEMENT rows reference the invoice they
// pay down; InvoiceID stays nil for free-standing cash receipts.
type Payment struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	StoreID        snowflake.ID      `gorm:"not null;index:ix_payments_store_client,priority:1" json:"store_id"`
	ClientID       snowflake.ID      `gorm:"not null;index:ix_payments_store_client,priority:2" json:"client_id"`
	InvoiceID      *snowflake.ID     `gorm:"index" json:"invoice_id,omitempty"`
	Kind           PaymentKind       `gorm:"type:text;not null" json:"kind"`
	Method         PaymentMethod     `gorm:"type:text;not null" json:"method"`
	Amount         money.Amount      `gorm:"not null" json:"amount"`
	Reference      string            `gorm:"" json:"reference,omitempty"`
	IdempotencyKey *string           `gorm:"" json:"idempotency_key,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// ValidMethod reports whether value names a known payment method.
func ValidMethod(value PaymentMethod) bool {
	switch value {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodAdvance:
		return true
	default:
		return false
	}
}
