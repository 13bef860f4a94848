package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
)

type inviteClientRequest struct {
	ClientEmail string `json:"client_email"`
}

func (s *Server) InviteClient(c *gin.Context) {
	var req inviteClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.relationshipSvc.Invite(c.Request.Context(), relationshipdomain.InviteRequest{
		ClientID:    strings.TrimSpace(c.Param("client_id")),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	resp, err := s.relationshipSvc.Accept(c.Request.Context(), relationshipdomain.RespondRequest{
		ClientID: strings.TrimSpace(c.Param("client_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectInvitation(c *gin.Context) {
	resp, err := s.relationshipSvc.Reject(c.Request.Context(), relationshipdomain.RespondRequest{
		ClientID: strings.TrimSpace(c.Param("client_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setClientCreditRequest struct {
	AllowCredit bool          `json:"allow_credit"`
	CreditLimit *money.Amount `json:"credit_limit"`
}

func (s *Server) SetClientCredit(c *gin.Context) {
	var req setClientCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.relationshipSvc.SetCredit(c.Request.Context(), relationshipdomain.SetCreditRequest{
		ClientID:    strings.TrimSpace(c.Param("client_id")),
		AllowCredit: req.AllowCredit,
		CreditLimit: req.CreditLimit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetRelationship(c *gin.Context) {
	resp, err := s.relationshipSvc.Get(c.Request.Context(), relationshipdomain.GetRequest{
		ClientID: strings.TrimSpace(c.Param("client_id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRelationships(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.relationshipSvc.List(c.Request.Context(), relationshipdomain.ListRelationshipRequest{
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
