// Package memstore is a single-process implementation of the order and
// product stores.
//
// One mutex serializes every transaction, so a unit of work observes and
// produces a consistent state. Stock decrements made inside a transaction are
// recorded in an undo journal and restored when the transaction fails.
package memstore

import (
	"context"
	"sync"

	"github.com/xenking/order-service/internal/domain/auth"
	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/product"
)

var (
	_ order.Transactor   = (*Store)(nil)
	_ product.StockStore = (*Store)(nil)
)

// Store keeps products, orders and API keys in memory. Products, Orders and
// APIKeys return the repository views over it.
type Store struct {
	mu sync.Mutex

	productSeq int64
	products   map[string]*product.Product

	orderSeq   int64
	orders     map[int64]*order.Order
	byExternal map[string]int64

	keys map[string]*auth.APIKeyInfo
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		products:   make(map[string]*product.Product),
		orders:     make(map[int64]*order.Order),
		byExternal: make(map[string]int64),
		keys:       make(map[string]*auth.APIKeyInfo),
	}
}

// Products returns the product repository view.
func (s *Store) Products() *Products { return &Products{s: s} }

// Orders returns the order repository view.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// APIKeys returns the API key repository view.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// WithinTx implements order.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, undo: make(map[string]int)}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	store   *Store
	undo    map[string]int
	pending []*order.Order
}

func (t *memTx) Orders() order.TxRepository { return t }
func (t *memTx) Stock() product.StockStore { return t }

func (t *memTx) ExistsByExternalID(_ context.Context, externalID string) (bool, error) {
	if _, ok := t.store.byExternal[externalID]; ok {
		return true, nil
	}
	for _, o := range t.pending {
		if o.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Insert(ctx context.Context, o *order.Order) error {
	exists, _ := t.ExistsByExternalID(ctx, o.ExternalID)
	if exists {
		return &order.DuplicateError{ExternalID: o.ExternalID}
	}
	t.store.orderSeq++
	o.ID = t.store.orderSeq
	c := o.Clone()
	t.pending = append(t.pending, &c)
	return nil
}

func (t *memTx) ConditionalReserve(_ context.Context, productID string, qty int) (*product.Reservation, error) {
	p, ok := t.store.products[productID]
	if ok {
		if _, seen := t.undo[productID]; !seen {
			t.undo[productID] = p.Quantity
		}
	}
	return t.store.reserveLocked(productID, qty)
}

func (t *memTx) rollback() {
	for id, qty := range t.undo {
		t.store.products[id].Quantity = qty
	}
}

func (t *memTx) commit() {
	for _, o := range t.pending {
		t.store.orders[o.ID] = o
		t.store.byExternal[o.ExternalID] = o.ID
	}
}

// ConditionalReserve implements product.StockStore outside of a transaction.
func (s *Store) ConditionalReserve(_ context.Context, productID string, qty int) (*product.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(productID, qty)
}

func (s *Store) reserveLocked(productID string, qty int) (*product.Reservation, error) {
	p, ok := s.products[productID]
	if !ok {
		return nil, &product.NotFoundError{ProductID: productID}
	}
	if p.Quantity < qty {
		return nil, &product.InsufficientStockError{
			ProductID: productID,
			Name:      p.Name,
			Available: p.Quantity,
			Requested: qty,
		}
	}
	p.Quantity -= qty
	return &product.Reservation{
		ProductID: productID,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		Reserved:  qty,
		Remaining: p.Quantity,
	}, nil
}

