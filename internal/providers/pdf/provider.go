// Package pdf renders printable receipts for settled invoices.
package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// Provider renders a receipt document for a PAID invoice.
type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
