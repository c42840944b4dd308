package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-service/internal/domain/paging"
	"github.com/xenking/order-service/internal/domain/product"
)

const (
	createProductSQL = `INSERT INTO products (product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	insertMissingProductSQL = `INSERT INTO products (product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id) DO NOTHING
		RETURNING id`

	getProductSQL = `SELECT id, product_id, product_name, quantity, unit_price
		FROM products WHERE product_id = $1`

	listProductsSQL = `SELECT id, product_id, product_name, quantity, unit_price
		FROM products ORDER BY id LIMIT $1 OFFSET $2`

	countProductsSQL = `SELECT count(*) FROM products`

	reserveStockSQL = `UPDATE products SET quantity = quantity - $2
		WHERE product_id = $1 AND quantity >= $2
		RETURNING product_name, unit_price, quantity`

	getStockSQL = `SELECT product_name, quantity FROM products WHERE product_id = $1`

	productIDConstraint = "products_product_id_key"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.StockStore = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and product.StockStore
// backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses db, either the
// pool or an open transaction.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a product and sets its surrogate id.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.db.QueryRow(ctx, createProductSQL, p.ProductID, p.Name, p.Quantity, p.UnitPrice).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err, productIDConstraint) {
			return product.ErrDuplicate
		}
		return fmt.Errorf("creating product %q: %w", p.ProductID, err)
	}
	return nil
}

// CreateIfAbsent inserts p unless a product with the same business id
// exists, and reports whether it was inserted. An existing row is left
// untouched: stock only moves through ConditionalReserve.
func (r *ProductRepository) CreateIfAbsent(ctx context.Context, p *product.Product) (bool, error) {
	err := r.db.QueryRow(ctx, insertMissingProductSQL, p.ProductID, p.Name, p.Quantity, p.UnitPrice).Scan(&p.ID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("inserting product %q: %w", p.ProductID, err)
	}
}

// GetByProductID returns a single product by its business id.
func (r *ProductRepository) GetByProductID(ctx context.Context, productID string) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", productID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &product.NotFoundError{ProductID: productID}
		}
		return nil, fmt.Errorf("getting product %q: %w", productID, err)
	}
	return &p, nil
}

// List returns a page of the catalog ordered by surrogate id.
func (r *ProductRepository) List(ctx context.Context, page paging.Request) (paging.Page[product.Product], error) {
	var total int64
	if err := r.db.QueryRow(ctx, countProductsSQL).Scan(&total); err != nil {
		return paging.Page[product.Product]{}, fmt.Errorf("counting products: %w", err)
	}

	rows, err := r.db.Query(ctx, listProductsSQL, page.Limit(), page.Offset())
	if err != nil {
		return paging.Page[product.Product]{}, fmt.Errorf("listing products: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return paging.Page[product.Product]{}, fmt.Errorf("listing products: %w", err)
	}
	return paging.NewPage(items, page, total), nil
}

// ConditionalReserve decrements stock in a single conditional UPDATE, so
// concurrent reservations of one product are serialized by its row lock.
// A follow-up read tells a missing product from insufficient stock.
func (r *ProductRepository) ConditionalReserve(ctx context.Context, productID string, qty int) (*product.Reservation, error) {
	res := product.Reservation{ProductID: productID, Reserved: qty}
	err := r.db.QueryRow(ctx, reserveStockSQL, productID, qty).Scan(&res.Name, &res.UnitPrice, &res.Remaining)
	if err == nil {
		return &res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reserving %d of %q: %w", qty, productID, err)
	}

	var (
		name      string
		available int
	)
	err = r.db.QueryRow(ctx, getStockSQL, productID).Scan(&name, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &product.NotFoundError{ProductID: productID}
		}
		return nil, fmt.Errorf("reading stock of %q: %w", productID, err)
	}
	return nil, &product.InsufficientStockError{
		ProductID: productID,
		Name:      name,
		Available: available,
		Requested: qty,
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.ProductID, &p.Name, &p.Quantity, &p.UnitPrice)
	return p, err
}
