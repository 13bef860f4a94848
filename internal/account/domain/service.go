package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidStore  = errors.New("invalid_store_id")
	ErrInvalidClient = errors.New("invalid_client_id")
	ErrNotFound      = errors.New("not_found")
)

type GetAccountRequest struct {
	ClientID string
}

// Service folds both ledgers into one consistent account snapshot.
type Service interface {
	GetAccount(ctx context.Context, req GetAccountRequest) (ClientAccount, error)
}
