package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSink(t *testing.T) {
	var (
		gotBody []byte
		gotKey  string
		gotCT   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotKey = r.Header.Get("X-Order-Key")
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.Client(), srv.URL)
	require.NoError(t, sink.Push(context.Background(), "ext-1", []byte(`{"orderId":1}`)))

	assert.Equal(t, `{"orderId":1}`, string(gotBody))
	assert.Equal(t, "ext-1", gotKey)
	assert.Equal(t, "application/json", gotCT)
}

func TestHTTPSink_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.Client(), srv.URL).Push(context.Background(), "ext-1", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
