package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/order-service/internal/domain/order"
)

type pushed struct {
	key     string
	payload []byte
}

type mockSink struct {
	mu    sync.Mutex
	calls []pushed
	err   error
	block chan struct{}
}

func (m *mockSink) Push(ctx context.Context, key string, payload []byte) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, pushed{key: key, payload: payload})
	return m.err
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestDispatcher(t *testing.T, sink Sink, cfg Config) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(sink, zap.NewNop(), cfg, noop.NewMeterProvider())
	require.NoError(t, err)
	return d
}

func testSummary() order.Summary {
	return order.Summary{
		OrderID:     42,
		ExternalID:  "ext-42",
		CustomerID:  "cust-1",
		TotalAmount: decimal.RequireFromString("131.5"),
		Status:      order.StatusCreated,
		UpdatedAt:   time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestEncode(t *testing.T) {
	got := map[string]string{}
	err := jx.DecodeBytes(Encode(testSummary())).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		got[key] = raw.String()
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"orderId":     "42",
		"externalId":  `"ext-42"`,
		"customerId":  `"cust-1"`,
		"totalAmount": "131.50",
		"status":      `"CREATED"`,
		"updatedAt":   `"2024-03-01T10:30:00Z"`,
	}, got)
}

func TestDispatcher_Delivers(t *testing.T) {
	sink := &mockSink{}
	d := newTestDispatcher(t, sink, Config{Workers: 1})
	d.Start()

	d.Notify(context.Background(), testSummary())
	d.Close()

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "ext-42", sink.calls[0].key)
	assert.Equal(t, Encode(testSummary()), sink.calls[0].payload)
}

func TestDispatcher_SinkErrorSwallowed(t *testing.T) {
	sink := &mockSink{err: errors.New("receiver down")}
	d := newTestDispatcher(t, sink, Config{Workers: 1})
	d.Start()

	require.NotPanics(t, func() {
		d.Notify(context.Background(), testSummary())
		d.Notify(context.Background(), testSummary())
	})
	d.Close()

	assert.Equal(t, 2, sink.count())
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	sink := &mockSink{block: make(chan struct{})}
	d := newTestDispatcher(t, sink, Config{Workers: 1, QueueSize: 1, Timeout: time.Minute})
	d.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 10 {
			d.Notify(context.Background(), testSummary())
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(sink.block)
	d.Close()

	// One in flight plus one queued at most.
	assert.LessOrEqual(t, sink.count(), 2)
	assert.GreaterOrEqual(t, sink.count(), 1)
}

func TestDispatcher_NotifyAfterClose(t *testing.T) {
	sink := &mockSink{}
	d := newTestDispatcher(t, sink, Config{})
	d.Start()
	d.Close()

	require.NotPanics(t, func() {
		d.Notify(context.Background(), testSummary())
	})
	assert.Zero(t, sink.count())
}

func TestNotificationError(t *testing.T) {
	cause := errors.New("timeout")
	err := &NotificationError{Key: "ext-1", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "notify ext-1: timeout", err.Error())
}
