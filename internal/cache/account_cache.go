package cache

import (
	"strings"
	"time"

	accountdomain "github.com/veciapp/fiado/internal/account/domain"
)

const defaultAccountTTL = 30 * time.Second

// AccountViewCache is the read-through cache for derived client accounts.
// Writers to either ledger must invalidate the touched key synchronously.
type AccountViewCache interface {
	Get(storeID, clientID string) (accountdomain.ClientAccount, bool)
	Set(storeID, clientID string, account accountdomain.ClientAccount)
	Invalidate(storeID, clientID string)
}

type accountViewCache struct {
	accounts Cache[string, accountdomain.ClientAccount]
	ttl      time.Duration
}

// NewAccountViewCache returns an in-memory cache for account views.
func NewAccountViewCache() AccountViewCache {
	return &accountViewCache{
		accounts: NewTTLCache[string, accountdomain.ClientAccount](),
		ttl:      defaultAccountTTL,
	}
}

func (c *accountViewCache) Get(storeID, clientID string) (accountdomain.ClientAccount, bool) {
	return c.accounts.Get(cacheKey(storeID, clientID))
}

func (c *accountViewCache) Set(storeID, clientID string, account accountdomain.ClientAccount) {
	c.accounts.Set(cacheKey(storeID, clientID), account, c.ttl)
}

func (c *accountViewCache) Invalidate(storeID, clientID string) {
	c.accounts.Delete(cacheKey(storeID, clientID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
