package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-service/internal/cache"
	"github.com/xenking/order-service/internal/domain/paging"
)

// CacheNamespace is the read cache namespace for product point lookups.
const CacheNamespace = "products"

var minUnitPrice = decimal.RequireFromString("0.01")

// Field validation errors for product intake.
var (
	ErrEmptyProductID   = errors.New("productId is required")
	ErrEmptyName        = errors.New("productName is required")
	ErrNegativeQuantity = errors.New("quantity must be greater than or equal to 0")
	ErrInvalidUnitPrice = errors.New("unitPrice must be at least 0.01")
)

// CreateRequest holds the input for registering a product.
type CreateRequest struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Service is the product intake path and the cache-wrapped product lookup.
type Service struct {
	repo  Repository
	cache *cache.Namespace[Product]
}

// NewService creates a product Service. Point lookups go through the given
// cache namespace.
func NewService(repo Repository, ns *cache.Namespace[Product]) *Service {
	return &Service{
		repo:  repo,
		cache: ns,
	}
}

// NewCache returns the product namespace of store.
func NewCache(store cache.Store) *cache.Namespace[Product] {
	return cache.NewNamespace(store, CacheNamespace, Codec)
}

// Create registers a new product.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	switch {
	case req.ProductID == "":
		return nil, ErrEmptyProductID
	case req.Name == "":
		return nil, ErrEmptyName
	case req.Quantity < 0:
		return nil, ErrNegativeQuantity
	case req.UnitPrice.LessThan(minUnitPrice):
		return nil, ErrInvalidUnitPrice
	}

	p := &Product{
		ProductID: req.ProductID,
		Name:      req.Name,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// GetByProductID returns a product by its business id, served from the
// cache when possible.
func (s *Service) GetByProductID(ctx context.Context, productID string) (*Product, error) {
	p, err := s.cache.Load(ctx, productID, func(ctx context.Context) (Product, error) {
		p, err := s.repo.GetByProductID(ctx, productID)
		if err != nil {
			return Product{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns a page of the catalog. Collection reads are not cached.
func (s *Service) List(ctx context.Context, page paging.Request) (paging.Page[Product], error) {
	res, err := s.repo.List(ctx, page.Normalize())
	if err != nil {
		return paging.Page[Product]{}, errors.Wrap(err, "list products")
	}
	return res, nil
}
