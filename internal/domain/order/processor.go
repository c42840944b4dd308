package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-service/internal/domain/paging"
)

var _ Scheduler = (*Processor)(nil)

// StatusTransitioner performs the conditional status write of processing.
type StatusTransitioner interface {
	TransitionStatus(ctx context.Context, id int64, from, to Status) (time.Time, error)
}

// PendingStore is the order store surface of the Processor: the conditional
// status write and the listing used to recover orders left in PROCESSING.
type PendingStore interface {
	StatusTransitioner
	ListByStatus(ctx context.Context, status Status, page paging.Request) (paging.Page[Order], error)
}

// Notifier publishes the outcome of processing. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, s Summary)
}

// Invalidator purges cached order reads.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ProcessorConfig tunes the background worker pool.
type ProcessorConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single order transition.
	Timeout time.Duration
	// SweepInterval is the period of the recovery sweep. Periodic sweeps only
	// pick up orders that have been PROCESSING for at least this long.
	SweepInterval time.Duration
}

func (c *ProcessorConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Processor moves assembled orders out of PROCESSING on background workers.
type Processor struct {
	repo     PendingStore
	caches   Invalidator
	notifier Notifier
	lg       *zap.Logger
	cfg      ProcessorConfig

	tracer      trace.Tracer
	transitions metric.Int64Counter

	queue   chan Order
	wg      sync.WaitGroup
	sweeper sync.WaitGroup
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// NewProcessor creates a Processor. Call Start to run its workers.
func NewProcessor(
	repo PendingStore,
	caches Invalidator,
	notifier Notifier,
	lg *zap.Logger,
	cfg ProcessorConfig,
	t Telemetry,
) (*Processor, error) {
	cfg.setDefaults()
	transitions, err := t.counter("orders.transitions", "Background order transitions, by resulting status")
	if err != nil {
		return nil, err
	}
	return &Processor{
		repo:        repo,
		caches:      caches,
		notifier:    notifier,
		lg:          lg,
		cfg:         cfg,
		tracer:      t.tracer(),
		transitions: transitions,
		queue:       make(chan Order, cfg.QueueSize),
		done:        make(chan struct{}),
		now:         time.Now,
	}, nil
}

// Start launches the workers and the recovery sweep. The first sweep runs
// immediately and re-queues every order left in PROCESSING.
func (p *Processor) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.sweeper.Add(1)
	go p.sweep()
}

// Close stops the sweep and new scheduling, drains the queue and waits for
// the workers.
func (p *Processor) Close() {
	p.once.Do(func() {
		close(p.done)
		p.sweeper.Wait()

		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
	})
}

// Schedule enqueues o without blocking. A full queue yields ErrQueueFull;
// the order stays in PROCESSING and is picked up by the recovery sweep.
func (p *Processor) Schedule(_ context.Context, o Order) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- o:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Processor) sweep() {
	defer p.sweeper.Done()

	p.recoverOnce(p.now())
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.recoverOnce(p.now().Add(-p.cfg.SweepInterval))
		}
	}
}

func (p *Processor) recoverOnce(before time.Time) {
	ctx, cancel := context.WithTimeout(zctx.Base(context.Background(), p.lg), p.cfg.Timeout)
	defer cancel()

	n, err := p.Recover(ctx, before)
	if err != nil {
		p.lg.Warn("Recover PROCESSING orders", zap.Error(err), zap.Int("requeued", n))
		return
	}
	if n > 0 {
		p.lg.Info("Requeued PROCESSING orders", zap.Int("requeued", n))
	}
}

// Recover queues every PROCESSING order created before the given time and
// returns how many were queued. Unlike Schedule it waits for queue space
// until ctx is done. Orders queued twice are harmless: the second transition
// finds them out of PROCESSING.
func (p *Processor) Recover(ctx context.Context, before time.Time) (int, error) {
	var queued int
	for page := 0; ; page++ {
		res, err := p.repo.ListByStatus(ctx, StatusProcessing, paging.Request{Page: page, Size: paging.MaxSize})
		if err != nil {
			return queued, errors.Wrap(err, "list processing orders")
		}
		for _, o := range res.Items {
			if !o.CreatedAt.Before(before) {
				continue
			}
			if err := p.requeue(ctx, o); err != nil {
				return queued, err
			}
			queued++
		}
		if page+1 >= res.TotalPages {
			return queued, nil
		}
	}
}

func (p *Processor) requeue(ctx context.Context, o Order) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- o:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "requeue")
	}
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for o := range p.queue {
		ctx, cancel := context.WithTimeout(zctx.Base(context.Background(), p.lg), p.cfg.Timeout)
		p.Process(ctx, o)
		cancel()
	}
}

// Process transitions o from PROCESSING to CREATED and notifies the
// receiver. When the CREATED write fails the order is marked FAILED; when
// that fails too it stays in PROCESSING. Process never panics or returns an
// error, outcomes are logged.
func (p *Processor) Process(ctx context.Context, o Order) {
	lg := p.lg.With(zap.Int64("order_id", o.ID), zap.String("external_id", o.ExternalID))
	ctx, span := p.tracer.Start(ctx, "order.Process",
		trace.WithAttributes(attribute.Int64("order.id", o.ID)),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			lg.Error("Order processing panicked", zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
		}
	}()

	updated, err := p.repo.TransitionStatus(ctx, o.ID, StatusProcessing, StatusCreated)
	switch {
	case err == nil:
		o.Status = StatusCreated
		o.UpdatedAt = updated
		p.record(ctx, StatusCreated)
		p.invalidate(ctx, lg)
		lg.Info("Order created")
		p.notifier.Notify(ctx, o.Summary())
		return
	case errors.Is(err, ErrNotInState):
		lg.Warn("Order already left PROCESSING, skipping")
		return
	}

	lg.Error("Persist CREATED status", zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, "created write failed")

	// The CREATED write may have spent the whole deadline.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()

	if _, ferr := p.repo.TransitionStatus(fctx, o.ID, StatusProcessing, StatusFailed); ferr != nil {
		if !errors.Is(ferr, ErrNotInState) {
			lg.Error("Persist FAILED status, order left in PROCESSING", zap.Error(ferr))
		}
		return
	}
	p.record(fctx, StatusFailed)
	p.invalidate(fctx, lg)
	lg.Warn("Order marked FAILED")
}

func (p *Processor) record(ctx context.Context, s Status) {
	p.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(s))))
}

func (p *Processor) invalidate(ctx context.Context, lg *zap.Logger) {
	if err := p.caches.Invalidate(ctx); err != nil {
		lg.Warn("Invalidate order cache", zap.Error(err))
	}
}
