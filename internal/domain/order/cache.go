package order

import (
	"context"

	"github.com/xenking/order-service/internal/cache"
)

// Read cache namespaces for order point lookups.
const (
	CacheByID         = "orders"
	CacheByExternalID = "ordersByExternalId"
)

// Caches groups the two order namespaces. Any status write purges both.
type Caches struct {
	ByID         *cache.Namespace[Order]
	ByExternalID *cache.Namespace[Order]
}

// NewCaches returns the order namespaces of store.
func NewCaches(store cache.Store) *Caches {
	return &Caches{
		ByID:         cache.NewNamespace(store, CacheByID, Codec),
		ByExternalID: cache.NewNamespace(store, CacheByExternalID, Codec),
	}
}

// Invalidate purges both namespaces. Both purges are attempted even if the
// first fails; the first error is returned.
func (c *Caches) Invalidate(ctx context.Context) error {
	errID := c.ByID.Invalidate(ctx)
	errExt := c.ByExternalID.Invalidate(ctx)
	if errID != nil {
		return errID
	}
	return errExt
}
