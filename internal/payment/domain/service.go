package domain

import (
	"context"
	"errors"

	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
)

var (
	ErrInvalidStore               = errors.New("invalid_store_id")
	ErrInvalidClient              = errors.New("invalid_client_id")
	ErrInvalidInvoice             = errors.New("invalid_invoice_id")
	ErrInvalidAmount              = errors.New("invalid_amount")
	ErrInvalidMethod              = errors.New("invalid_method")
	ErrInvalidKind                = errors.New("invalid_kind")
	ErrNotFound                   = errors.New("not_found")
	ErrNotAccepted                = errors.New("not_accepted")
	ErrAlreadyPaid                = errors.New("already_paid")
	ErrInsufficientAdvanceBalance = errors.New("insufficient_advance_balance")
	ErrOverpaymentRejected        = errors.New("overpayment_rejected")
)

type RecordAdvanceRequest struct {
	ClientID       string        `json:"client_id"`
	Amount         money.Amount  `json:"amount"`
	Method         PaymentMethod `json:"method"`
	Reference      string        `json:"reference,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type SettleInvoiceRequest struct {
	InvoiceID      string        `json:"invoice_id"`
	Amount         money.Amount  `json:"amount"`
	Method         PaymentMethod `json:"method"`
	Reference      string        `json:"reference,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type RecordReceiptRequest struct {
	ClientID  string        `json:"client_id"`
	Amount    money.Amount  `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Reference string        `json:"reference,omitempty"`
}

type BalanceRequest struct {
	ClientID string
}

type ListPaymentRequest struct {
	ClientID  string
	Kind      string
	Method    string
	PageToken string
	PageSize  int32
}

type ListPaymentFilter struct {
	Kind   PaymentKind
	Method PaymentMethod
}

type ListPaymentResponse struct {
	Payments []Payment           `json:"payments"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Service is the payment and advance ledger. SettleInvoice is the only
// operation that writes to both ledgers; it runs serialized per account
// inside one transaction.
type Service interface {
	RecordAdvance(ctx context.Context, req RecordAdvanceRequest) (Payment, error)
	SettleInvoice(ctx context.Context, req SettleInvoiceRequest) (Payment, error)
	RecordReceipt(ctx context.Context, req RecordReceiptRequest) (Payment, error)
	AvailableAdvanceBalance(ctx context.Context, req BalanceRequest) (money.Amount, error)
	History(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
}
