package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-service/internal/domain/paging"
)

// Sentinel errors for product intake and reservation.
var (
	// ErrDuplicate is returned when a product id is already registered.
	ErrDuplicate = errors.New("product already exists")
	// ErrInvalidQuantity is returned for a non-positive reservation.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Product is a stock keeping unit and its available quantity.
type Product struct {
	ID        int64
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Reservation is the result of a successful stock reservation. Name and
// UnitPrice are the values at the moment the stock was taken.
type Reservation struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Reserved  int
	Remaining int
}

// NotFoundError indicates a product id that does not resolve.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product not found with productId: %s", e.ProductID)
}

// InsufficientStockError indicates a reservation larger than the available
// quantity.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// Repository defines persistence of the product catalog.
type Repository interface {
	// Create inserts p and sets its surrogate ID. Returns ErrDuplicate when
	// the product id is taken.
	Create(ctx context.Context, p *Product) error
	GetByProductID(ctx context.Context, productID string) (*Product, error)
	List(ctx context.Context, page paging.Request) (paging.Page[Product], error)
}

// StockStore performs the conditional decrement backing a reservation:
// quantity = quantity - qty WHERE quantity >= qty, as one indivisible step.
// It returns *NotFoundError or *InsufficientStockError on rejection.
type StockStore interface {
	ConditionalReserve(ctx context.Context, productID string, qty int) (*Reservation, error)
}
