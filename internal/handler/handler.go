// Package handler exposes the order and product services over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xenking/order-service/internal/domain/auth"
	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/paging"
	"github.com/xenking/order-service/internal/domain/product"
)

// OrderIntake accepts new orders.
type OrderIntake interface {
	Assemble(ctx context.Context, req order.AssembleRequest) (*order.Order, error)
}

// OrderQueries serves order reads and the status override.
type OrderQueries interface {
	GetByID(ctx context.Context, id int64) (*order.Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*order.Order, error)
	List(ctx context.Context, page paging.Request) (paging.Page[order.Order], error)
	ListByStatus(ctx context.Context, status order.Status, page paging.Request) (paging.Page[order.Order], error)
	ListByDateRange(ctx context.Context, start, end time.Time, page paging.Request) (paging.Page[order.Order], error)
	CountToday(ctx context.Context) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status order.Status) error
}

// Products serves the product catalog.
type Products interface {
	Create(ctx context.Context, req product.CreateRequest) (*product.Product, error)
	GetByProductID(ctx context.Context, productID string) (*product.Product, error)
	List(ctx context.Context, page paging.Request) (paging.Page[product.Product], error)
}

// Authenticator checks administrative API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

// Handler serves the /api routes.
type Handler struct {
	intake   OrderIntake
	orders   OrderQueries
	products Products
	auth     Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(intake OrderIntake, orders OrderQueries, products Products, authn Authenticator) *Handler {
	return &Handler{
		intake:   intake,
		orders:   orders,
		products: products,
		auth:     authn,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/range", h.ListOrdersByDateRange)
	mux.HandleFunc("GET /api/orders/metrics/today", h.CountToday)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /api/orders/external/{externalId}", h.GetOrderByExternalID)
	mux.HandleFunc("GET /api/orders/status/{status}", h.ListOrdersByStatus)
	mux.Handle("PUT /api/orders/{id}/status/{status}", h.RequireScope(auth.ScopeOrdersAdmin, http.HandlerFunc(h.UpdateOrderStatus)))

	mux.HandleFunc("POST /api/products", h.CreateProduct)
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{productId}", h.GetProduct)
}
