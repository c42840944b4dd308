package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-service/internal/domain/paging"
	"github.com/xenking/order-service/internal/domain/product"
)

// Status is the fulfillment state of an order.
type Status string

const (
	// StatusProcessing is the state an order is persisted in by assembly.
	StatusProcessing Status = "PROCESSING"
	// StatusCreated is the terminal state of a successfully processed order.
	StatusCreated Status = "CREATED"
	// StatusFailed is the terminal state of an order whose processing failed.
	StatusFailed Status = "FAILED"
)

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusProcessing, StatusCreated, StatusFailed:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCreated || s == StatusFailed
}

// LineItem is a single reserved product line of an order. It is owned by
// its order and never changes after assembly.
type LineItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Order is an accepted customer order together with its line items.
type Order struct {
	ID          int64
	ExternalID  string
	CustomerID  string
	Status      Status
	TotalAmount decimal.Decimal
	Items       []LineItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a copy of o that shares no memory with it.
func (o Order) Clone() Order {
	o.Items = append([]LineItem(nil), o.Items...)
	return o
}

// Summary is the minimal order view pushed to the external receiver.
type Summary struct {
	OrderID     int64
	ExternalID  string
	CustomerID  string
	TotalAmount decimal.Decimal
	Status      Status
	UpdatedAt   time.Time
}

// Summary returns the notification view of o.
func (o Order) Summary() Summary {
	return Summary{
		OrderID:     o.ID,
		ExternalID:  o.ExternalID,
		CustomerID:  o.CustomerID,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		UpdatedAt:   o.UpdatedAt,
	}
}

// LineRequest asks for Quantity units of ProductID.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// AssembleRequest holds the input for accepting an order.
type AssembleRequest struct {
	ExternalID string
	CustomerID string
	Items      []LineRequest
}

// Repository defines reads and status writes on persisted orders.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByExternalID(ctx context.Context, externalID string) (*Order, error)
	List(ctx context.Context, page paging.Request) (paging.Page[Order], error)
	ListByStatus(ctx context.Context, status Status, page paging.Request) (paging.Page[Order], error)
	ListByDateRange(ctx context.Context, start, end time.Time, page paging.Request) (paging.Page[Order], error)
	CountSince(ctx context.Context, since time.Time) (int64, error)

	// UpdateStatus unconditionally sets the status of id. It reports whether
	// a row matched.
	UpdateStatus(ctx context.Context, id int64, status Status) (bool, error)
	// TransitionStatus moves id from one status to another and returns the
	// new update time. Returns ErrNotInState if id is not in status from.
	TransitionStatus(ctx context.Context, id int64, from, to Status) (time.Time, error)
}

// TxRepository is the order side of an assembly transaction.
type TxRepository interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	// Insert persists o with its items and sets o.ID. Returns *DuplicateError
	// when the external id is taken.
	Insert(ctx context.Context, o *Order) error
}

// Tx is the transactional view of the store used by assembly.
type Tx interface {
	Orders() TxRepository
	Stock() product.StockStore
}

// Transactor runs fn in a single atomic unit of work. Any error returned by
// fn rolls back every write made through the Tx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
