package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/order-service/internal/domain/order"
)

var _ order.Notifier = (*Dispatcher)(nil)

// Config tunes a Dispatcher.
type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single push.
	Timeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

type message struct {
	key     string
	payload []byte
}

// Dispatcher queues order summaries and pushes them to a Sink on its own
// workers.
type Dispatcher struct {
	sink Sink
	lg   *zap.Logger
	cfg  Config

	outcomes metric.Int64Counter

	queue chan message
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a Dispatcher. A nil provider uses the global one.
func NewDispatcher(sink Sink, lg *zap.Logger, cfg Config, mp metric.MeterProvider) (*Dispatcher, error) {
	cfg.setDefaults()
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	outcomes, err := mp.Meter("github.com/xenking/order-service/internal/notify").Int64Counter(
		"notifications",
		metric.WithDescription("Order notifications, by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create notifications counter")
	}
	return &Dispatcher{
		sink:     sink,
		lg:       lg,
		cfg:      cfg,
		outcomes: outcomes,
		queue:    make(chan message, cfg.QueueSize),
	}, nil
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Close stops accepting notifications and waits for queued ones to be
// pushed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Encode returns the notification payload for s.
func Encode(s order.Summary) []byte {
	var e jx.Encoder
	s.Encode(&e)
	return e.Bytes()
}

// Notify implements order.Notifier. It never blocks: when the queue is full
// or the dispatcher is closed the notification is dropped.
func (d *Dispatcher) Notify(ctx context.Context, s order.Summary) {
	msg := message{key: s.ExternalID, payload: Encode(s)}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, msg.key, "closed")
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.drop(ctx, msg.key, "queue_full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, key, reason string) {
	d.lg.Warn("Notification dropped", zap.String("key", key), zap.String("reason", reason))
	d.record(ctx, "dropped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.push(msg)
	}
}

func (d *Dispatcher) push(msg message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	if err := d.sink.Push(ctx, msg.key, msg.payload); err != nil {
		nerr := &NotificationError{Key: msg.key, Err: err}
		d.lg.Error("Push notification", zap.Error(nerr))
		d.record(ctx, "failed")
		return
	}
	d.record(ctx, "delivered")
}

func (d *Dispatcher) record(ctx context.Context, outcome string) {
	d.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
