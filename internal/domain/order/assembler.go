package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-service/internal/domain/product"
)

// Scheduler accepts an assembled order for background processing. The
// order passed in is owned by the scheduler. Schedule must not block on the
// caller's context: an order it cannot take stays in PROCESSING.
type Scheduler interface {
	Schedule(ctx context.Context, o Order) error
}

// Assembler turns an intake request into a persisted order in PROCESSING.
type Assembler struct {
	tx        Transactor
	ledger    *product.Ledger
	scheduler Scheduler
	now       func() time.Time

	tracer    trace.Tracer
	assembled metric.Int64Counter
	rejected  metric.Int64Counter
}

// NewAssembler creates an Assembler.
func NewAssembler(tx Transactor, ledger *product.Ledger, scheduler Scheduler, t Telemetry) (*Assembler, error) {
	assembled, err := t.counter("orders.assembled", "Orders persisted in PROCESSING")
	if err != nil {
		return nil, err
	}
	rejected, err := t.counter("orders.rejected", "Order intake requests rejected, by reason")
	if err != nil {
		return nil, err
	}
	return &Assembler{
		tx:        tx,
		ledger:    ledger,
		scheduler: scheduler,
		now:       time.Now,
		tracer:    t.tracer(),
		assembled: assembled,
		rejected:  rejected,
	}, nil
}

// Assemble validates req, reserves stock for every line in request order and
// persists the order with its items in one transaction. The returned order
// is in PROCESSING; its transition is handed to the scheduler with a copy.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*Order, error) {
	ctx, span := a.tracer.Start(ctx, "order.Assemble",
		trace.WithAttributes(
			attribute.String("order.external_id", req.ExternalID),
			attribute.Int("order.lines", len(req.Items)),
		),
	)
	defer span.End()

	o, err := a.assemble(ctx, req)
	if err != nil {
		a.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return nil, err
	}
	a.assembled.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	// Stock is committed, drop cached product quantities.
	a.ledger.Invalidate(ctx)

	if err := a.scheduler.Schedule(ctx, o.Clone()); err != nil {
		zctx.From(ctx).Warn("Schedule order processing, order left for the recovery sweep",
			zap.Int64("order_id", o.ID),
			zap.String("external_id", o.ExternalID),
			zap.Error(err),
		)
	}
	return o, nil
}

func (a *Assembler) assemble(ctx context.Context, req AssembleRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
	}

	var o *Order
	err := a.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		exists, err := tx.Orders().ExistsByExternalID(ctx, req.ExternalID)
		if err != nil {
			return errors.Wrap(err, "check external id")
		}
		if exists {
			return &DuplicateError{ExternalID: req.ExternalID}
		}

		now := a.now().UTC()
		draft := &Order{
			ExternalID:  req.ExternalID,
			CustomerID:  req.CustomerID,
			Status:      StatusProcessing,
			TotalAmount: decimal.Zero,
			Items:       make([]LineItem, 0, len(req.Items)),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for _, line := range req.Items {
			r, err := a.ledger.Reserve(ctx, tx.Stock(), line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			total := r.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			draft.Items = append(draft.Items, LineItem{
				ProductID:   line.ProductID,
				ProductName: r.Name,
				Quantity:    line.Quantity,
				UnitPrice:   r.UnitPrice,
				TotalPrice:  total,
			})
			draft.TotalAmount = draft.TotalAmount.Add(total)
		}

		if err := tx.Orders().Insert(ctx, draft); err != nil {
			return err
		}
		o = draft
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return o, nil
}

// classify passes domain rejections through and turns everything else into
// a PersistenceError.
func classify(err error) error {
	var (
		dup   *DuplicateError
		pnf   *product.NotFoundError
		stock *product.InsufficientStockError
		pe    *PersistenceError
	)
	switch {
	case errors.As(err, &dup), errors.As(err, &pnf), errors.As(err, &stock), errors.As(err, &pe):
		return err
	case errors.Is(err, product.ErrInvalidQuantity):
		return err
	default:
		return &PersistenceError{Op: "assemble order", Err: err}
	}
}

func reason(err error) string {
	var (
		dup   *DuplicateError
		pnf   *product.NotFoundError
		stock *product.InsufficientStockError
		qty   *InvalidQuantityError
	)
	switch {
	case errors.As(err, &dup):
		return "duplicate"
	case errors.As(err, &pnf):
		return "product_not_found"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &qty), errors.Is(err, ErrEmptyItems), errors.Is(err, product.ErrInvalidQuantity):
		return "invalid"
	default:
		return "persistence"
	}
}
