package domain

import (
	"context"
	"errors"

	"github.com/veciapp/fiado/pkg/db/pagination"
	"github.com/veciapp/fiado/pkg/money"
)

type InviteRequest struct {
	ClientID    string
	ClientEmail string
}

type RespondRequest struct {
	ClientID string
}

type SetCreditRequest struct {
	ClientID    string
	AllowCredit bool
	CreditLimit *money.Amount
}

type GetRequest struct {
	ClientID string
}

type ListRelationshipRequest struct {
	PageToken string
	PageSize  int32
	Status    string
}

type ListRelationshipFilter struct {
	Status RelationshipStatus
}

type ListRelationshipResponse struct {
	pagination.PageInfo
	Relationships []Relationship `json:"relationships"`
}

type Service interface {
	Invite(context.Context, InviteRequest) (Relationship, error)
	Accept(context.Context, RespondRequest) (Relationship, error)
	Reject(context.Context, RespondRequest) (Relationship, error)
	SetCredit(context.Context, SetCreditRequest) (Relationship, error)
	Get(context.Context, GetRequest) (Relationship, error)
	List(context.Context, ListRelationshipRequest) (ListRelationshipResponse, error)
}

var (
	ErrInvalidStore        = errors.New("invalid_store")
	ErrInvalidClient       = errors.New("invalid_client")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidCreditLimit  = errors.New("invalid_credit_limit")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrNotFound            = errors.New("not_found")
	ErrDuplicateInvitation = errors.New("duplicate_invitation")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrNotAccepted         = errors.New("not_accepted")
)
