// Package domain contains persistence models for the invoice ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/datatypes"
)

// InvoiceStatus is the two-state invoice lifecycle. PAID is terminal.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "UNPAID"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
)

// Invoice is one receivable row under an accepted client relationship.
// PAID rows are immutable; paid_at is set iff status is PAID.
type Invoice struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	StoreID          snowflake.ID      `gorm:"not null;index:ix_invoices_store_client,priority:1" json:"store_id"`
	ClientID         snowflake.ID      `gorm:"not null;index:ix_invoices_store_client,priority:2" json:"client_id"`
	OrderID          string            `gorm:"not null" json:"order_id"`
	Amount           money.Amount      `gorm:"not null" json:"amount"`
	Status           InvoiceStatus     `gorm:"type:text;not null;default:'UNPAID';index" json:"status"`
	CreditFunded     bool              `gorm:"not null;default:false" json:"credit_funded"`
	DueAt            time.Time         `gorm:"not null;index" json:"due_at"`
	PaidAt           *time.Time        `gorm:"" json:"paid_at,omitempty"`
	PaymentReference string            `gorm:"" json:"payment_reference,omitempty"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// IsPaid reports whether the invoice has been fully settled.
func (i Invoice) IsPaid() bool { return i.Status == InvoiceStatusPaid }

// OverdueInvoice is an UNPAID invoice past its due date, annotated for
// display with the day count and the aging bucket it falls into.
type OverdueInvoice struct {
	Invoice
	DaysOverdue int    `json:"days_overdue"`
	AgingBucket string `json:"aging_bucket"`
}
