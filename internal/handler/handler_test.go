package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/order-service/internal/cache"
	"github.com/xenking/order-service/internal/domain/auth"
	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/paging"
	"github.com/xenking/order-service/internal/domain/product"
	"github.com/xenking/order-service/internal/repository/memstore"
)

const (
	testPepper = "pepper"
	adminKey   = "admin-secret"
	readerKey  = "reader-secret"
)

type noopScheduler struct{}

func (noopScheduler) Schedule(context.Context, order.Order) error { return nil }

type testServer struct {
	mux   *http.ServeMux
	store *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memstore.New()
	cacheStore := cache.NewMemory(0)
	productNS := product.NewCache(cacheStore)
	products := product.NewService(store.Products(), productNS)
	ledger := product.NewLedger(store, productNS)

	assembler, err := order.NewAssembler(store, ledger, noopScheduler{}, order.Telemetry{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	queries := order.NewQueryService(store.Orders(), order.NewCaches(cacheStore))

	store.APIKeys().Add(auth.APIKeyInfo{
		ID:      "1",
		KeyHash: auth.Hash([]byte(testPepper), adminKey),
		Name:    "admin",
		Scopes:  []string{auth.ScopeOrdersAdmin},
	})
	store.APIKeys().Add(auth.APIKeyInfo{
		ID:      "2",
		KeyHash: auth.Hash([]byte(testPepper), readerKey),
		Name:    "reader",
	})

	h := NewHandler(assembler, queries, products, auth.NewAuthenticator(store.APIKeys(), []byte(testPepper)))
	mux := http.NewServeMux()
	h.Register(mux)

	for _, p := range []product.CreateRequest{
		{ProductID: "A", Name: "Alpha", Quantity: 10, UnitPrice: decimal.RequireFromString("50.00")},
		{ProductID: "B", Name: "Beta", Quantity: 10, UnitPrice: decimal.RequireFromString("10.50")},
	} {
		_, err := products.Create(context.Background(), p)
		require.NoError(t, err)
	}
	return &testServer{mux: mux, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

// fields decodes the top-level fields of a JSON object as raw strings.
func fields(t *testing.T, body []byte) map[string]string {
	t.Helper()
	res := map[string]string{}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		res[key] = raw.String()
		return nil
	})
	require.NoError(t, err)
	return res
}

const validOrder = `{"externalId":"ext-1","customerId":"cust-1","items":[{"productId":"A","quantity":2},{"productId":"B","quantity":3}]}`

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", validOrder)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	got := fields(t, w.Body.Bytes())
	assert.Equal(t, `"PROCESSING"`, got["status"])
	assert.Equal(t, "131.50", got["totalAmount"])
	assert.Equal(t, `"ext-1"`, got["externalId"])
	assert.Equal(t, "/api/orders/"+got["id"], w.Header().Get("Location"))
}

func TestCreateOrder_Duplicate(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/orders", validOrder).Code)

	w := s.do(t, http.MethodPost, "/api/orders", validOrder)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "409", fields(t, w.Body.Bytes())["code"])
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders",
		`{"externalId":"ext-1","customerId":"c","items":[{"productId":"A","quantity":11}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	got := fields(t, w.Body.Bytes())
	assert.Equal(t, "10", got["available"])
	assert.Equal(t, "11", got["requested"])
	assert.Equal(t, `"A"`, got["productId"])
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders",
		`{"externalId":"ext-1","customerId":"c","items":[{"productId":"ZZZ","quantity":1}]}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ZZZ")
}

func TestCreateOrder_Validation(t *testing.T) {
	s := newTestServer(t)

	for _, tt := range []struct {
		name string
		body string
	}{
		{"Malformed", `{"externalId":`},
		{"MissingExternalID", `{"customerId":"c","items":[{"productId":"A","quantity":1}]}`},
		{"LongExternalID", `{"externalId":"` + strings.Repeat("x", 51) + `","customerId":"c","items":[{"productId":"A","quantity":1}]}`},
		{"MissingCustomer", `{"externalId":"e","items":[{"productId":"A","quantity":1}]}`},
		{"NoItems", `{"externalId":"e","customerId":"c","items":[]}`},
		{"ZeroQuantity", `{"externalId":"e","customerId":"c","items":[{"productId":"A","quantity":0}]}`},
		{"MissingProductID", `{"externalId":"e","customerId":"c","items":[{"quantity":1}]}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestGetOrder(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/orders", validOrder).Code)

	w := s.do(t, http.MethodGet, "/api/orders/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"ext-1"`, fields(t, w.Body.Bytes())["externalId"])

	w = s.do(t, http.MethodGet, "/api/orders/external/ext-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders/999", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, `"order not found with id: 999"`, fields(t, w.Body.Bytes())["message"])

	w = s.do(t, http.MethodGet, "/api/orders/external/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "nope")

	w = s.do(t, http.MethodGet, "/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListOrders(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/orders", validOrder).Code)

	w := s.do(t, http.MethodGet, "/api/orders?page=0&size=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := fields(t, w.Body.Bytes())
	assert.Equal(t, "1", got["totalItems"])
	assert.Equal(t, "5", got["size"])

	w = s.do(t, http.MethodGet, "/api/orders/status/processing", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", fields(t, w.Body.Bytes())["totalItems"])

	w = s.do(t, http.MethodGet, "/api/orders/status/unknown", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders?size=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders?page=100000000000000000&size=100", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	now := time.Now().UTC()
	w = s.do(t, http.MethodGet, "/api/orders/range?start="+now.Add(-time.Hour).Format(time.RFC3339)+
		"&end="+now.Add(time.Hour).Format(time.RFC3339), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", fields(t, w.Body.Bytes())["totalItems"])

	w = s.do(t, http.MethodGet, "/api/orders/range?start=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders/metrics/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":1}`, w.Body.String())
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/orders", validOrder).Code)

	w := s.do(t, http.MethodPut, "/api/orders/1/status/CREATED", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/orders/1/status/CREATED", "", HeaderAPIKey, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/orders/1/status/CREATED", "", HeaderAPIKey, readerKey)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, "/api/orders/1/status/CREATED", "", HeaderAPIKey, adminKey)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders/1", "")
	assert.Equal(t, `"CREATED"`, fields(t, w.Body.Bytes())["status"])

	w = s.do(t, http.MethodPut, "/api/orders/1/status/BOGUS", "", HeaderAPIKey, adminKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProducts(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/products", `{"productId":"C","productName":"Gamma","quantity":3,"unitPrice":"4.20"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "4.20", fields(t, w.Body.Bytes())["unitPrice"])

	w = s.do(t, http.MethodPost, "/api/products", `{"productId":"C","productName":"Gamma","quantity":3,"unitPrice":4.2}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/products", `{"productId":"D","productName":"Delta","quantity":3,"unitPrice":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/products/C", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"Gamma"`, fields(t, w.Body.Bytes())["productName"])

	w = s.do(t, http.MethodGet, "/api/products/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", fields(t, w.Body.Bytes())["totalItems"])

	w = s.do(t, http.MethodGet, "/api/products?page=100000000000000000&size=100", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type failingQueries struct {
	OrderQueries
}

func (failingQueries) GetByID(context.Context, int64) (*order.Order, error) {
	return nil, &order.PersistenceError{Op: "find order", Err: errors.New("connection reset by peer")}
}

func (failingQueries) List(context.Context, paging.Request) (paging.Page[order.Order], error) {
	return paging.Page[order.Order]{}, errors.New("pool closed")
}

func TestInternalErrorHidesDetail(t *testing.T) {
	h := NewHandler(nil, failingQueries{}, nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/api/orders/1", "/api/orders"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"code":500,"message":"internal server error"}`, w.Body.String())
	}
}
