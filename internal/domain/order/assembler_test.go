package order_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/product"
)

func TestAssemble_Totals(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "50.00"), newProduct("B", 10, "10.50"))

	o, err := e.assembler.Assemble(context.Background(), order.AssembleRequest{
		ExternalID: "ext-1",
		CustomerID: "cust-1",
		Items: []order.LineRequest{
			{ProductID: "A", Quantity: 2},
			{ProductID: "B", Quantity: 3},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.NotZero(t, o.ID)
	require.Len(t, o.Items, 2)
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Items[0].TotalPrice))
	assert.True(t, decimal.RequireFromString("31.50").Equal(o.Items[1].TotalPrice))
	assert.True(t, decimal.RequireFromString("131.50").Equal(o.TotalAmount), "got %s", o.TotalAmount)
	assert.Equal(t, "Product A", o.Items[0].ProductName)

	assert.Equal(t, 8, e.quantity(t, "A"))
	assert.Equal(t, 7, e.quantity(t, "B"))

	scheduled := e.scheduler.scheduled()
	require.Len(t, scheduled, 1)
	assert.Equal(t, o.ID, scheduled[0].ID)
}

func TestAssemble_EmptyItems(t *testing.T) {
	e := newEnv(t)

	_, err := e.assembler.Assemble(context.Background(), order.AssembleRequest{ExternalID: "ext-1"})
	require.ErrorIs(t, err, order.ErrEmptyItems)
}

func TestAssemble_ZeroQuantity(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"))

	_, err := e.assembler.Assemble(context.Background(), order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 0}},
	})

	var iqErr *order.InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "A", iqErr.ProductID)
	assert.Equal(t, 10, e.quantity(t, "A"))
}

func TestAssemble_DuplicateBeforeReservation(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"))
	ctx := context.Background()

	_, err := e.assembler.Assemble(ctx, order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 1}},
	})
	require.NoError(t, err)

	// The second request would also fail on stock; the duplicate must win.
	_, err = e.assembler.Assemble(ctx, order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 100}},
	})
	var dupErr *order.DuplicateError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "ext-1", dupErr.ExternalID)
	assert.Equal(t, 9, e.quantity(t, "A"))
}

func TestAssemble_InsufficientStockRollsBack(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"), newProduct("B", 2, "1.00"))
	ctx := context.Background()

	_, err := e.assembler.Assemble(ctx, order.AssembleRequest{
		ExternalID: "ext-1",
		Items: []order.LineRequest{
			{ProductID: "A", Quantity: 5},
			{ProductID: "B", Quantity: 3},
		},
	})

	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "B", stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)

	assert.Equal(t, 10, e.quantity(t, "A"), "earlier reservation must be rolled back")
	assert.Equal(t, 2, e.quantity(t, "B"))

	_, err = e.store.Orders().FindByExternalID(ctx, "ext-1")
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.Empty(t, e.scheduler.scheduled())
}

func TestAssemble_ProductNotFound(t *testing.T) {
	e := newEnv(t)

	_, err := e.assembler.Assemble(context.Background(), order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *product.NotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestAssemble_ConcurrentOversell(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"))

	var (
		ok       atomic.Int32
		stockErr atomic.Pointer[product.InsufficientStockError]
	)
	var g errgroup.Group
	for _, ext := range []string{"ext-1", "ext-2"} {
		g.Go(func() error {
			_, err := e.assembler.Assemble(context.Background(), order.AssembleRequest{
				ExternalID: ext,
				Items:      []order.LineRequest{{ProductID: "A", Quantity: 6}},
			})
			var se *product.InsufficientStockError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &se):
				stockErr.Store(se)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, ok.Load())
	require.NotNil(t, stockErr.Load())
	assert.Equal(t, 6, stockErr.Load().Requested)
	assert.Equal(t, 4, stockErr.Load().Available)
	assert.Equal(t, 4, e.quantity(t, "A"))
}

func TestAssemble_ConcurrentDuplicate(t *testing.T) {
	e := newEnv(t, newProduct("A", 100, "1.00"))

	const n = 8
	var (
		ok   atomic.Int32
		dups atomic.Int32
	)
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := e.assembler.Assemble(context.Background(), order.AssembleRequest{
				ExternalID: "same",
				Items:      []order.LineRequest{{ProductID: "A", Quantity: 1}},
			})
			var de *order.DuplicateError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &de):
				dups.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, dups.Load())
	assert.Equal(t, 99, e.quantity(t, "A"))
}

func TestAssemble_InvalidatesProductCache(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"))
	ctx := context.Background()

	p, err := e.products.GetByProductID(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, 10, p.Quantity)
	require.Equal(t, 1, e.cache.Len(product.CacheNamespace))

	_, err = e.assembler.Assemble(ctx, order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Zero(t, e.cache.Len(product.CacheNamespace))

	p, err = e.products.GetByProductID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Quantity)
}

func TestAssemble_FailedRejectionKeepsProductCache(t *testing.T) {
	e := newEnv(t, newProduct("A", 1, "1.00"))
	ctx := context.Background()

	_, err := e.products.GetByProductID(ctx, "A")
	require.NoError(t, err)

	_, err = e.assembler.Assemble(ctx, order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 2}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, e.cache.Len(product.CacheNamespace))
}

func TestAssemble_ResponseNotMutatedByProcessing(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"))
	ctx := context.Background()

	notifier := &recordingNotifier{}
	proc, err := order.NewProcessor(e.store.Orders(), order.NewCaches(e.cache), notifier, zap.NewNop(),
		order.ProcessorConfig{Workers: 1, QueueSize: 1}, testTelemetry)
	require.NoError(t, err)
	proc.Start()

	a, err := order.NewAssembler(e.store, e.ledger, proc, testTelemetry)
	require.NoError(t, err)

	o, err := a.Assemble(ctx, order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 1}},
	})
	require.NoError(t, err)
	proc.Close()

	assert.Equal(t, order.StatusProcessing, o.Status)

	stored, err := e.store.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCreated, stored.Status)

	sent := notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, order.StatusCreated, sent[0].Status)
	assert.Equal(t, "ext-1", sent[0].ExternalID)
}

func TestAssemble_ScheduleFailureStillAccepts(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"))
	e.scheduler.err = order.ErrClosed

	o, err := e.assembler.Assemble(context.Background(), order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, o.Status)
}

func TestAssemble_FullQueueRecoveredOnStart(t *testing.T) {
	e := newEnv(t, newProduct("A", 10, "1.00"))

	proc, err := order.NewProcessor(e.store.Orders(), order.NewCaches(e.cache), &recordingNotifier{}, zap.NewNop(),
		order.ProcessorConfig{Workers: 1, QueueSize: 1}, testTelemetry)
	require.NoError(t, err)
	require.NoError(t, proc.Schedule(context.Background(), order.Order{ID: 999, Status: order.StatusProcessing}))

	a, err := order.NewAssembler(e.store, e.ledger, proc, testTelemetry)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o, err := a.Assemble(ctx, order.AssembleRequest{
		ExternalID: "ext-1",
		Items:      []order.LineRequest{{ProductID: "A", Quantity: 1}},
	})
	require.NoError(t, err)

	proc.Start()
	proc.Close()

	stored, err := e.store.Orders().FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCreated, stored.Status)
}
