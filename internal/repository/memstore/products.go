package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/order-service/internal/domain/paging"
	"github.com/xenking/order-service/internal/domain/product"
)

var _ product.Repository = (*Products)(nil)

// Products is the product repository view of a Store.
type Products struct {
	s *Store
}

// Create implements product.Repository.
func (r *Products) Create(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[p.ProductID]; ok {
		return product.ErrDuplicate
	}
	r.s.productSeq++
	p.ID = r.s.productSeq
	c := *p
	r.s.products[p.ProductID] = &c
	return nil
}

// GetByProductID implements product.Repository.
func (r *Products) GetByProductID(_ context.Context, productID string) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[productID]
	if !ok {
		return nil, &product.NotFoundError{ProductID: productID}
	}
	c := *p
	return &c, nil
}

// List implements product.Repository. Products are ordered by surrogate id.
func (r *Products) List(_ context.Context, page paging.Request) (paging.Page[product.Product], error) {
	r.s.mu.Lock()
	all := make([]product.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		all = append(all, *p)
	}
	r.s.mu.Unlock()

	slices.SortFunc(all, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return slicePage(all, page), nil
}

func slicePage[T any](all []T, page paging.Request) paging.Page[T] {
	page = page.Normalize()
	total := int64(len(all))
	from := min(max(page.Offset(), 0), len(all))
	to := min(from+page.Limit(), len(all))
	return paging.NewPage(all[from:to], page, total)
}
