package memstore

import (
	"context"

	"github.com/xenking/order-service/internal/domain/auth"
)

var _ auth.Repository = (*APIKeys)(nil)

// APIKeys is the API key repository view of a Store.
type APIKeys struct {
	s *Store
}

// Add registers an active key.
func (r *APIKeys) Add(info auth.APIKeyInfo) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.keys[info.KeyHash] = &info
}

// FindByHash implements auth.Repository.
func (r *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	info, ok := r.s.keys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	c := *info
	return &c, nil
}
