package domain

import (
	"context"
	"errors"
	"time"

	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
)

var (
	ErrInvalidStore        = errors.New("invalid_store_id")
	ErrInvalidClient       = errors.New("invalid_client_id")
	ErrInvalidInvoice      = errors.New("invalid_invoice_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidDueDate      = errors.New("invalid_due_date")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrNotFound            = errors.New("not_found")
	ErrNotAccepted         = errors.New("not_accepted")
	ErrCreditNotAuthorized = errors.New("credit_not_authorized")
	ErrAlreadyPaid         = errors.New("already_paid")
)

type CreateInvoiceRequest struct {
	ClientID     string       `json:"client_id"`
	OrderID      string       `json:"order_id"`
	Amount       money.Amount `json:"amount"`
	DueAt        time.Time    `json:"due_date"`
	CreditFunded bool         `json:"credit_funded"`
}

type MarkPaidDirectRequest struct {
	InvoiceID string `json:"invoice_id"`
	Reference string `json:"reference"`
}

type ListInvoiceRequest struct {
	ClientID  string
	Status    string
	PageToken string
	PageSize  int32
}

type ListInvoiceFilter struct {
	Status InvoiceStatus
}

type ListInvoiceResponse struct {
	Invoices []Invoice           `json:"invoices"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type ComputeOverdueRequest struct {
	ClientID string
	AsOf     time.Time
}

type GetInvoiceRequest struct {
	InvoiceID string
}

// Service is the invoice ledger. Creation requires an ACCEPTED
// relationship; credit-funded creation additionally requires allowCredit.
// Affordability is the credit gate's concern, never re-checked here.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	MarkPaidDirect(ctx context.Context, req MarkPaidDirectRequest) (Invoice, error)
	Get(ctx context.Context, req GetInvoiceRequest) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	ComputeOverdue(ctx context.Context, req ComputeOverdueRequest) ([]OverdueInvoice, error)
}
