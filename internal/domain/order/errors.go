package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order intake and status writes.
var (
	ErrEmptyItems = errors.New("order must contain at least one item")
	// ErrNotInState is returned by a conditional transition whose order has
	// already left the expected status.
	ErrNotInState = errors.New("order is not in the expected status")
	// ErrClosed is returned when scheduling on a stopped processor.
	ErrClosed = errors.New("processor closed")
	// ErrQueueFull is returned by Schedule when no worker queue slot is free.
	ErrQueueFull = errors.New("processor queue full")
	// ErrInvalidRange is returned for a date range that ends before it starts.
	ErrInvalidRange = errors.New("range end is before start")
)

// DuplicateError indicates an external id that already belongs to an order.
type DuplicateError struct {
	ExternalID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("order with externalId %s already exists", e.ExternalID)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// NotFoundError indicates a lookup key that matches no order.
type NotFoundError struct {
	Field string
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order not found with %s: %s", e.Field, e.Value)
}

// PersistenceError indicates that the store failed an order write or read.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrNotFound is returned by a Repository lookup that matches no row.
var ErrNotFound = errors.New("order not found")
