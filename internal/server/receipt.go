package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	"github.com/veciapp/fiado/internal/providers/pdf"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/internal/storectx"
)

// InvoiceReceipt renders a PDF receipt for a PAID invoice.
func (s *Server) InvoiceReceipt(c *gin.Context) {
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), invoicedomain.GetInvoiceRequest{
		InvoiceID: strings.TrimSpace(c.Param("invoice_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !invoice.IsPaid() {
		AbortWithError(c, errInvoiceNotPaid)
		return
	}

	storeID, _ := storectx.StoreIDFromContext(c.Request.Context())
	settlements, err := s.paymentRepo.ListForInvoice(c.Request.Context(), s.db, storeID, invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	relationship, err := s.relationshipSvc.Get(c.Request.Context(), relationshipdomain.GetRequest{
		ClientID: invoice.ClientID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := pdf.ReceiptData{
		StoreName:     s.cfg.AppName,
		ClientEmail:   relationship.ClientEmail,
		InvoiceNumber: invoice.ID.String(),
		OrderID:       invoice.OrderID,
		IssueDate:     invoice.CreatedAt.UTC().Format(time.RFC3339),
		Reference:     invoice.PaymentReference,
		Total:         invoice.Amount.String(),
	}
	if invoice.PaidAt != nil {
		data.DatePaid = invoice.PaidAt.UTC().Format(time.RFC3339)
	}
	for _, settlement := range settlements {
		if settlement == nil {
			continue
		}
		data.Settlements = append(data.Settlements, pdf.SettlementLine{
			Date:   settlement.CreatedAt.UTC().Format(time.RFC3339),
			Method: string(settlement.Method),
			Amount: settlement.Amount.String(),
		})
	}

	reader, err := s.pdfProvider.GenerateReceipt(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="receipt-`+invoice.ID.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}
