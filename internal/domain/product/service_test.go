package product

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-service/internal/cache"
	"github.com/xenking/order-service/internal/domain/paging"
)

type mockRepo struct {
	byID    map[string]*Product
	gets    atomic.Int32
	nextID  int64
	listErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: make(map[string]*Product)}
}

func (m *mockRepo) Create(_ context.Context, p *Product) error {
	if _, ok := m.byID[p.ProductID]; ok {
		return errors.Wrap(ErrDuplicate, "insert")
	}
	m.nextID++
	p.ID = m.nextID
	c := *p
	m.byID[p.ProductID] = &c
	return nil
}

func (m *mockRepo) GetByProductID(_ context.Context, productID string) (*Product, error) {
	m.gets.Add(1)
	p, ok := m.byID[productID]
	if !ok {
		return nil, &NotFoundError{ProductID: productID}
	}
	c := *p
	return &c, nil
}

func (m *mockRepo) List(_ context.Context, page paging.Request) (paging.Page[Product], error) {
	if m.listErr != nil {
		return paging.Page[Product]{}, m.listErr
	}
	items := make([]Product, 0, len(m.byID))
	for _, p := range m.byID {
		items = append(items, *p)
	}
	return paging.NewPage(items, page, int64(len(items))), nil
}

func newTestService() (*Service, *mockRepo, *cache.Memory) {
	repo := newMockRepo()
	store := cache.NewMemory(0)
	return NewService(repo, NewCache(store)), repo, store
}

func validRequest() CreateRequest {
	return CreateRequest{
		ProductID: "p1",
		Name:      "Widget",
		Quantity:  5,
		UnitPrice: decimal.RequireFromString("9.99"),
	}
}

func TestCreate(t *testing.T) {
	svc, _, _ := newTestService()

	p, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "Widget", p.Name)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	for _, tt := range []struct {
		name   string
		modify func(*CreateRequest)
		want   error
	}{
		{"EmptyProductID", func(r *CreateRequest) { r.ProductID = "" }, ErrEmptyProductID},
		{"EmptyName", func(r *CreateRequest) { r.Name = "" }, ErrEmptyName},
		{"NegativeQuantity", func(r *CreateRequest) { r.Quantity = -1 }, ErrNegativeQuantity},
		{"ZeroPrice", func(r *CreateRequest) { r.UnitPrice = decimal.Zero }, ErrInvalidUnitPrice},
		{"SubCentPrice", func(r *CreateRequest) { r.UnitPrice = decimal.RequireFromString("0.009") }, ErrInvalidUnitPrice},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.modify(&req)
			_, err := svc.Create(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_ZeroQuantityAllowed(t *testing.T) {
	svc, _, _ := newTestService()
	req := validRequest()
	req.Quantity = 0

	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestCreate_Duplicate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.Create(ctx, validRequest())
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestGetByProductID_Cached(t *testing.T) {
	svc, repo, store := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	for range 3 {
		p, err := svc.GetByProductID(ctx, "p1")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("9.99").Equal(p.UnitPrice))
		assert.Equal(t, 5, p.Quantity)
	}
	assert.EqualValues(t, 1, repo.gets.Load())
	assert.Equal(t, 1, store.Len(CacheNamespace))
}

func TestGetByProductID_NotFoundNotCached(t *testing.T) {
	svc, repo, store := newTestService()
	ctx := context.Background()

	for range 2 {
		_, err := svc.GetByProductID(ctx, "missing")
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
	}
	assert.EqualValues(t, 2, repo.gets.Load())
	assert.Zero(t, store.Len(CacheNamespace))
}

func TestList(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	page, err := svc.List(ctx, paging.Request{Size: 500})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, paging.MaxSize, page.Size)

	repo.listErr = errors.New("boom")
	_, err = svc.List(ctx, paging.Request{})
	require.Error(t, err)
}
