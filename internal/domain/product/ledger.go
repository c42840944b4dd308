package product

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Invalidator purges a cache namespace.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Ledger owns per-product available quantity. Every decrement goes through
// a StockStore conditional update, so concurrent reservations against one
// product form a linear sequence and quantity never drops below zero.
type Ledger struct {
	stock    StockStore
	products Invalidator
}

// NewLedger creates a Ledger reserving against stock. products is the
// product read cache namespace purged after a successful reservation.
func NewLedger(stock StockStore, products Invalidator) *Ledger {
	return &Ledger{
		stock:    stock,
		products: products,
	}
}

// ReserveStock reserves qty units of productID as a standalone unit of work
// and invalidates the product cache once the decrement is durable.
func (l *Ledger) ReserveStock(ctx context.Context, productID string, qty int) (*Reservation, error) {
	r, err := l.Reserve(ctx, l.stock, productID, qty)
	if err != nil {
		return nil, err
	}
	l.Invalidate(ctx)
	return r, nil
}

// Reserve reserves qty units of productID through st, which is typically
// bound to a surrounding transaction. The caller must call Invalidate after
// that transaction commits; invalidating earlier would let a concurrent
// reader cache the pre-commit quantity.
func (l *Ledger) Reserve(ctx context.Context, st StockStore, productID string, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return st.ConditionalReserve(ctx, productID, qty)
}

// Invalidate purges the product read cache. Failures are logged: the stock
// change is already committed and readers fall back to the store once the
// cache recovers.
func (l *Ledger) Invalidate(ctx context.Context) {
	if l.products == nil {
		return
	}
	if err := l.products.Invalidate(ctx); err != nil {
		zctx.From(ctx).Warn("Invalidate product cache", zap.Error(err))
	}
}
