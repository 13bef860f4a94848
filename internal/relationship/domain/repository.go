package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, relationship *Relationship) error
	Find(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID) (*Relationship, error)
	// Respond flips status from PENDING to the given terminal state with a
	// compare-and-set; it returns the number of rows updated.
	Respond(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, to RelationshipStatus, respondedAt time.Time) (int64, error)
	UpdateCredit(ctx context.Context, db *gorm.DB, storeID, clientID snowflake.ID, allowCredit bool, creditLimit *int64, updatedAt time.Time) error
	List(ctx context.Context, db *gorm.DB, storeID snowflake.ID, filter ListRelationshipFilter, page pagination.Pagination) ([]*Relationship, error)
}
