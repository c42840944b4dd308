package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPSink POSTs notifications as JSON to an endpoint.
type HTTPSink struct {
	client   *http.Client
	endpoint string
}

// NewHTTPSink creates an HTTPSink. A nil client gets an instrumented
// default; per-push deadlines come from the context.
func NewHTTPSink(client *http.Client, endpoint string) *HTTPSink {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPSink{
		client:   client,
		endpoint: endpoint,
	}
}

// Push implements Sink. Any non-2xx response is an error.
func (s *HTTPSink) Push(ctx context.Context, key string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Order-Key", key)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
