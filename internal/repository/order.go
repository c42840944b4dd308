package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/paging"
)

const (
	orderColumns = `id, external_id, customer_id, status, total_amount, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (external_id, customer_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items
		(order_id, position, product_id, product_name, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	existsByExternalIDSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE external_id = $1)`

	existsByIDSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByExternalIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE external_id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	countOrdersSQL = `SELECT count(*) FROM orders`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders WHERE status = $3
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	countOrdersByStatusSQL = `SELECT count(*) FROM orders WHERE status = $1`

	listOrdersByRangeSQL = `SELECT ` + orderColumns + ` FROM orders WHERE created_at BETWEEN $3 AND $4
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	countOrdersByRangeSQL = `SELECT count(*) FROM orders WHERE created_at BETWEEN $1 AND $2`

	countOrdersSinceSQL = `SELECT count(*) FROM orders WHERE created_at >= $1`

	listOrderItemsSQL = `SELECT order_id, product_id, product_name, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	transitionOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2 RETURNING updated_at`

	externalIDConstraint = "orders_external_id_key"
)

var (
	_ order.Repository   = (*OrderRepository)(nil)
	_ order.TxRepository = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.TxRepository backed
// by PostgreSQL.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses db, either the
// pool or an open transaction.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ExistsByExternalID reports whether an order with externalID is persisted.
func (r *OrderRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, existsByExternalIDSQL, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking external id %q: %w", externalID, err)
	}
	return exists, nil
}

// Insert persists o and its line items. The unique constraint on external_id
// catches a concurrent insert that passed the existence check.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	err := r.db.QueryRow(ctx, insertOrderSQL,
		o.ExternalID, o.CustomerID, string(o.Status), o.TotalAmount, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err, externalIDConstraint) {
			return &order.DuplicateError{ExternalID: o.ExternalID}
		}
		return fmt.Errorf("inserting order %q: %w", o.ExternalID, err)
	}

	for i, it := range o.Items {
		_, err := r.db.Exec(ctx, insertOrderItemSQL,
			o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("inserting item %d of order %q: %w", i, o.ExternalID, err)
		}
	}
	return nil
}

// FindByID implements order.Repository.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.findOne(ctx, getOrderByIDSQL, id)
}

// FindByExternalID implements order.Repository.
func (r *OrderRepository) FindByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	return r.findOne(ctx, getOrderByExternalIDSQL, externalID)
}

func (r *OrderRepository) findOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %v: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %v: %w", arg, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List implements order.Repository. Newest orders come first.
func (r *OrderRepository) List(ctx context.Context, page paging.Request) (paging.Page[order.Order], error) {
	return r.page(ctx, page, countOrdersSQL, nil, listOrdersSQL)
}

// ListByStatus implements order.Repository.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status, page paging.Request) (paging.Page[order.Order], error) {
	return r.page(ctx, page, countOrdersByStatusSQL, []any{string(status)}, listOrdersByStatusSQL)
}

// ListByDateRange implements order.Repository. Both bounds are inclusive.
func (r *OrderRepository) ListByDateRange(ctx context.Context, start, end time.Time, page paging.Request) (paging.Page[order.Order], error) {
	return r.page(ctx, page, countOrdersByRangeSQL, []any{start, end}, listOrdersByRangeSQL)
}

// page counts with filter args and lists with (limit, offset, filter args...).
func (r *OrderRepository) page(ctx context.Context, page paging.Request, countSQL string, filter []any, listSQL string) (paging.Page[order.Order], error) {
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, filter...).Scan(&total); err != nil {
		return paging.Page[order.Order]{}, fmt.Errorf("counting orders: %w", err)
	}

	args := append([]any{page.Limit(), page.Offset()}, filter...)
	rows, err := r.db.Query(ctx, listSQL, args...)
	if err != nil {
		return paging.Page[order.Order]{}, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return paging.Page[order.Order]{}, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return paging.Page[order.Order]{}, err
	}
	return paging.NewPage(orders, page, total), nil
}

// CountSince implements order.Repository.
func (r *OrderRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, countOrdersSinceSQL, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders since %s: %w", since.Format(time.RFC3339), err)
	}
	return n, nil
}

// UpdateStatus implements order.Repository.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (bool, error) {
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return false, fmt.Errorf("updating status of order %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// TransitionStatus implements order.Repository.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id int64, from, to order.Status) (time.Time, error) {
	var updated time.Time
	err := r.db.QueryRow(ctx, transitionOrderStatusSQL, id, string(from), string(to)).Scan(&updated)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("transitioning order %d to %s: %w", id, to, err)
	}

	var exists bool
	if err := r.db.QueryRow(ctx, existsByIDSQL, id).Scan(&exists); err != nil {
		return time.Time{}, fmt.Errorf("checking order %d: %w", id, err)
	}
	if !exists {
		return time.Time{}, order.ErrNotFound
	}
	return time.Time{}, order.ErrNotInState
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	idx := make(map[int64]int, len(orders))
	ids := make([]int64, len(orders))
	for i, o := range orders {
		idx[o.ID] = i
		ids[i] = o.ID
	}

	rows, err := r.db.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			it      order.LineItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		o := &orders[idx[orderID]]
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.ExternalID, &o.CustomerID, &status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	o.Status = order.Status(status)
	return o, err
}
