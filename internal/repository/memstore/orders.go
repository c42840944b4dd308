package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/paging"
)

var _ order.Repository = (*Orders)(nil)

// Orders is the order repository view of a Store.
type Orders struct {
	s *Store
}

// FindByID implements order.Repository.
func (r *Orders) FindByID(_ context.Context, id int64) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	c := o.Clone()
	return &c, nil
}

// FindByExternalID implements order.Repository.
func (r *Orders) FindByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	r.s.mu.Lock()
	id, ok := r.s.byExternal[externalID]
	r.s.mu.Unlock()
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// List implements order.Repository.
func (r *Orders) List(_ context.Context, page paging.Request) (paging.Page[order.Order], error) {
	return slicePage(r.filter(func(*order.Order) bool { return true }), page), nil
}

// ListByStatus implements order.Repository.
func (r *Orders) ListByStatus(_ context.Context, status order.Status, page paging.Request) (paging.Page[order.Order], error) {
	return slicePage(r.filter(func(o *order.Order) bool { return o.Status == status }), page), nil
}

// ListByDateRange implements order.Repository.
func (r *Orders) ListByDateRange(_ context.Context, start, end time.Time, page paging.Request) (paging.Page[order.Order], error) {
	return slicePage(r.filter(func(o *order.Order) bool {
		return !o.CreatedAt.Before(start) && !o.CreatedAt.After(end)
	}), page), nil
}

// CountSince implements order.Repository.
func (r *Orders) CountSince(_ context.Context, since time.Time) (int64, error) {
	return int64(len(r.filter(func(o *order.Order) bool { return !o.CreatedAt.Before(since) }))), nil
}

// UpdateStatus implements order.Repository.
func (r *Orders) UpdateStatus(_ context.Context, id int64, status order.Status) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return false, nil
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

// TransitionStatus implements order.Repository.
func (r *Orders) TransitionStatus(_ context.Context, id int64, from, to order.Status) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return time.Time{}, order.ErrNotFound
	}
	if o.Status != from {
		return time.Time{}, order.ErrNotInState
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return o.UpdatedAt, nil
}

// filter returns matching orders, newest first.
func (r *Orders) filter(match func(*order.Order) bool) []order.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var res []order.Order
	for _, o := range r.s.orders {
		if match(o) {
			res = append(res, o.Clone())
		}
	}
	slices.SortFunc(res, func(a, b order.Order) int { return cmp.Compare(b.ID, a.ID) })
	return res
}
