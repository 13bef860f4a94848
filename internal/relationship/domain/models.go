// Package domain contains persistence models for client-store relationships.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/pkg/money"
	"gorm.io/datatypes"
)

// RelationshipStatus represents the invitation lifecycle states.
type RelationshipStatus string

const (
	RelationshipStatusPending  RelationshipStatus = "PENDING"
	RelationshipStatusAccepted RelationshipStatus = "ACCEPTED"
	RelationshipStatusRejected RelationshipStatus = "REJECTED"
)

// Relationship is the per-store, per-client account record gating credit
// and invoicing. One row ever exists per (store, client) pair; REJECTED
// and ACCEPTED are terminal.
type Relationship struct {
	ID          snowflake.ID       `gorm:"primaryKey" json:"id"`
	StoreID     snowflake.ID       `gorm:"not null;index;uniqueIndex:ux_relationships_store_client,priority:1" json:"store_id"`
	ClientID    snowflake.ID       `gorm:"not null;uniqueIndex:ux_relationships_store_client,priority:2" json:"client_id"`
	ClientEmail string             `gorm:"not null" json:"client_email"`
	Status      RelationshipStatus `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	AllowCredit bool               `gorm:"not null;default:false" json:"allow_credit"`
	CreditLimit *money.Amount      `gorm:"" json:"credit_limit,omitempty"`
	Metadata    datatypes.JSONMap  `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	RespondedAt *time.Time         `gorm:"" json:"responded_at,omitempty"`
}

// TableName sets the database table name.
func (Relationship) TableName() string { return "relationships" }

// CanTransact reports whether invoices and payments may reference this
// relationship.
func (r Relationship) CanTransact() bool {
	return r.Status == RelationshipStatusAccepted
}
