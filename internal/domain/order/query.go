package order

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-service/internal/domain/paging"
)

// QueryService serves order reads and the administrative status override.
// Point lookups are cached; collection reads and counts always hit the store.
type QueryService struct {
	repo   Repository
	caches *Caches
	now    func() time.Time
}

// NewQueryService creates a QueryService.
func NewQueryService(repo Repository, caches *Caches) *QueryService {
	return &QueryService{
		repo:   repo,
		caches: caches,
		now:    time.Now,
	}
}

// GetByID returns the order with surrogate id.
func (s *QueryService) GetByID(ctx context.Context, id int64) (*Order, error) {
	key := strconv.FormatInt(id, 10)
	o, err := s.caches.ByID.Load(ctx, key, func(ctx context.Context) (Order, error) {
		return s.find(ctx, "id", key, func() (*Order, error) { return s.repo.FindByID(ctx, id) })
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetByExternalID returns the order with the given external id.
func (s *QueryService) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	o, err := s.caches.ByExternalID.Load(ctx, externalID, func(ctx context.Context) (Order, error) {
		return s.find(ctx, "externalId", externalID, func() (*Order, error) { return s.repo.FindByExternalID(ctx, externalID) })
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *QueryService) find(_ context.Context, field, value string, fn func() (*Order, error)) (Order, error) {
	o, err := fn()
	switch {
	case errors.Is(err, ErrNotFound):
		return Order{}, &NotFoundError{Field: field, Value: value}
	case err != nil:
		return Order{}, &PersistenceError{Op: "find order by " + field, Err: err}
	}
	return *o, nil
}

// List returns a page of all orders.
func (s *QueryService) List(ctx context.Context, page paging.Request) (paging.Page[Order], error) {
	res, err := s.repo.List(ctx, page.Normalize())
	if err != nil {
		return res, &PersistenceError{Op: "list orders", Err: err}
	}
	return res, nil
}

// ListByStatus returns a page of orders in status.
func (s *QueryService) ListByStatus(ctx context.Context, status Status, page paging.Request) (paging.Page[Order], error) {
	res, err := s.repo.ListByStatus(ctx, status, page.Normalize())
	if err != nil {
		return res, &PersistenceError{Op: "list orders by status", Err: err}
	}
	return res, nil
}

// ListByDateRange returns a page of orders created in [start, end].
func (s *QueryService) ListByDateRange(ctx context.Context, start, end time.Time, page paging.Request) (paging.Page[Order], error) {
	if end.Before(start) {
		return paging.Page[Order]{}, ErrInvalidRange
	}
	res, err := s.repo.ListByDateRange(ctx, start, end, page.Normalize())
	if err != nil {
		return res, &PersistenceError{Op: "list orders by date range", Err: err}
	}
	return res, nil
}

// CountSince returns the number of orders created at or after since.
func (s *QueryService) CountSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := s.repo.CountSince(ctx, since)
	if err != nil {
		return 0, &PersistenceError{Op: "count orders", Err: err}
	}
	return n, nil
}

// CountToday returns the number of orders created since local midnight.
func (s *QueryService) CountToday(ctx context.Context) (int64, error) {
	now := s.now()
	y, m, d := now.Date()
	return s.CountSince(ctx, time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
}

// UpdateStatus overrides the status of order id. Both order namespaces are
// purged whether or not the write matched a row. An unknown id is not an
// error.
func (s *QueryService) UpdateStatus(ctx context.Context, id int64, status Status) error {
	found, err := s.repo.UpdateStatus(ctx, id, status)
	if ierr := s.caches.Invalidate(ctx); ierr != nil {
		zctx.From(ctx).Warn("Invalidate order cache", zap.Error(ierr))
	}
	if err != nil {
		return &PersistenceError{Op: "update order status", Err: err}
	}
	if !found {
		zctx.From(ctx).Info("Status override matched no order", zap.Int64("order_id", id))
	}
	return nil
}
