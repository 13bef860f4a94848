package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/veciapp/fiado/internal/account/domain"
	"github.com/veciapp/fiado/internal/creditgate"
	"github.com/veciapp/fiado/pkg/money"
)

func (s *Server) GetClientAccount(c *gin.Context) {
	resp, err := s.accountSvc.GetAccount(c.Request.Context(), accountdomain.GetAccountRequest{
		ClientID: strings.TrimSpace(c.Param("client_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreditCheck(c *gin.Context) {
	amount, err := money.Parse(strings.TrimSpace(c.Query("amount")))
	if err != nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "invalid amount"))
		return
	}

	resp, err := s.creditGate.CanAffordCreditOrder(c.Request.Context(), creditgate.CheckRequest{
		ClientID: strings.TrimSpace(c.Param("client_id")),
		Amount:   amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
