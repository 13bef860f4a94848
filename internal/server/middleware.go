package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/veciapp/fiado/internal/storectx"
)

// StoreContext resolves the :store_id path param and carries it into the
// request context. Every store-scoped handler reads it from there.
func StoreContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Param("store_id"))
		storeID, err := snowflake.ParseString(raw)
		if err != nil || storeID == 0 {
			AbortWithError(c, newValidationError("store_id", "invalid_store_id", "invalid store_id"))
			return
		}

		ctx := storectx.WithStoreID(c.Request.Context(), int64(storeID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
