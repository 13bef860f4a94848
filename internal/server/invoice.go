package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
)

type createInvoiceRequest struct {
	OrderID      string       `json:"order_id"`
	Amount       money.Amount `json:"amount"`
	DueDate      string       `json:"due_date"`
	CreditFunded bool         `json:"credit_funded"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dueAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DueDate))
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		ClientID:     strings.TrimSpace(c.Param("client_id")),
		OrderID:      strings.TrimSpace(req.OrderID),
		Amount:       req.Amount,
		DueAt:        dueAt,
		CreditFunded: req.CreditFunded,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		ClientID:  strings.TrimSpace(c.Param("client_id")),
		Status:    strings.TrimSpace(query.Status),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListOverdueInvoices(c *gin.Context) {
	asOf, err := parseOptionalTime(c.Query("as_of"))
	if err != nil {
		AbortWithError(c, newValidationError("as_of", "invalid_as_of", "invalid as_of"))
		return
	}

	req := invoicedomain.ComputeOverdueRequest{
		ClientID: strings.TrimSpace(c.Param("client_id")),
	}
	if asOf != nil {
		req.AsOf = *asOf
	}

	resp, err := s.invoiceSvc.ComputeOverdue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type payInvoiceRequest struct {
	Reference string `json:"reference"`
}

func (s *Server) PayInvoiceDirect(c *gin.Context) {
	var req payInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.MarkPaidDirect(c.Request.Context(), invoicedomain.MarkPaidDirectRequest{
		InvoiceID: strings.TrimSpace(c.Param("invoice_id")),
		Reference: strings.TrimSpace(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
