package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/order-service/internal/cache"
	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/product"
	"github.com/xenking/order-service/internal/repository/memstore"
)

var testTelemetry = order.Telemetry{
	TracerProvider: tracenoop.NewTracerProvider(),
	MeterProvider:  metricnoop.NewMeterProvider(),
}

type captureScheduler struct {
	mu     sync.Mutex
	orders []order.Order
	err    error
}

func (s *captureScheduler) Schedule(_ context.Context, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.orders = append(s.orders, o)
	return nil
}

func (s *captureScheduler) scheduled() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]order.Order(nil), s.orders...)
}

type env struct {
	store     *memstore.Store
	cache     *cache.Memory
	products  *product.Service
	ledger    *product.Ledger
	scheduler *captureScheduler
	assembler *order.Assembler
}

func newEnv(t *testing.T, products ...product.Product) *env {
	t.Helper()

	e := &env{
		store:     memstore.New(),
		cache:     cache.NewMemory(0),
		scheduler: &captureScheduler{},
	}
	ns := product.NewCache(e.cache)
	e.products = product.NewService(e.store.Products(), ns)
	e.ledger = product.NewLedger(e.store, ns)

	a, err := order.NewAssembler(e.store, e.ledger, e.scheduler, testTelemetry)
	require.NoError(t, err)
	e.assembler = a

	for _, p := range products {
		_, err := e.products.Create(context.Background(), product.CreateRequest{
			ProductID: p.ProductID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
		})
		require.NoError(t, err)
	}
	return e
}

func (e *env) quantity(t *testing.T, productID string) int {
	t.Helper()
	p, err := e.store.Products().GetByProductID(context.Background(), productID)
	require.NoError(t, err)
	return p.Quantity
}

func newProduct(id string, qty int, price string) product.Product {
	return product.Product{
		ProductID: id,
		Name:      "Product " + id,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []order.Summary
}

func (n *recordingNotifier) Notify(_ context.Context, s order.Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
}

func (n *recordingNotifier) all() []order.Summary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]order.Summary(nil), n.sent...)
}
