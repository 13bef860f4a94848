package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/veciapp/fiado/internal/payment/domain"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
)

type recordAdvanceRequest struct {
	Amount         money.Amount `json:"amount"`
	Method         string       `json:"method"`
	Reference      string       `json:"reference"`
	IdempotencyKey string       `json:"idempotency_key"`
}

func (s *Server) RecordAdvance(c *gin.Context) {
	var req recordAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.RecordAdvance(c.Request.Context(), paymentdomain.RecordAdvanceRequest{
		ClientID:       strings.TrimSpace(c.Param("client_id")),
		Amount:         req.Amount,
		Method:         paymentdomain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.Method))),
		Reference:      strings.TrimSpace(req.Reference),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type settleInvoiceRequest struct {
	Amount         money.Amount `json:"amount"`
	Method         string       `json:"method"`
	Reference      string       `json:"reference"`
	IdempotencyKey string       `json:"idempotency_key"`
}

func (s *Server) SettleInvoice(c *gin.Context) {
	var req settleInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.SettleInvoice(c.Request.Context(), paymentdomain.SettleInvoiceRequest{
		InvoiceID:      strings.TrimSpace(c.Param("invoice_id")),
		Amount:         req.Amount,
		Method:         paymentdomain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.Method))),
		Reference:      strings.TrimSpace(req.Reference),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type recordReceiptRequest struct {
	Amount    money.Amount `json:"amount"`
	Method    string       `json:"method"`
	Reference string       `json:"reference"`
}

func (s *Server) RecordReceipt(c *gin.Context) {
	var req recordReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.RecordReceipt(c.Request.Context(), paymentdomain.RecordReceiptRequest{
		ClientID:  strings.TrimSpace(c.Param("client_id")),
		Amount:    req.Amount,
		Method:    paymentdomain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.Method))),
		Reference: strings.TrimSpace(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PaymentHistory(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Kind   string `form:"kind"`
		Method string `form:"method"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.History(c.Request.Context(), paymentdomain.ListPaymentRequest{
		ClientID:  strings.TrimSpace(c.Param("client_id")),
		Kind:      strings.TrimSpace(query.Kind),
		Method:    strings.TrimSpace(query.Method),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
