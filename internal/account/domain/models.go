// Package domain defines the derived client account view. Nothing in this
// package is stored; the view is folded from the invoice and payment ledgers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/pkg/money"
)

// ClientAccount is the snapshot a storefront shows for one client:
// what they owe, what they have prepaid, and how much credit headroom
// remains. UnlimitedCredit is set when credit is allowed with no limit.
type ClientAccount struct {
	StoreID         snowflake.ID  `json:"store_id"`
	ClientID        snowflake.ID  `json:"client_id"`
	BalanceDue      money.Amount  `json:"balance_due"`
	TotalAdvances   money.Amount  `json:"total_advances"`
	AvailableCredit money.Amount  `json:"available_credit"`
	AllowCredit     bool          `json:"allow_credit"`
	CreditLimit     *money.Amount `json:"credit_limit,omitempty"`
	UnlimitedCredit bool          `json:"unlimited_credit"`
	ComputedAt      time.Time     `json:"computed_at"`
}
