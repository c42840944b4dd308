// Package notify publishes order outcomes to an external receiver.
//
// Delivery is best effort and at most once: a failed push is logged and
// dropped, and a full queue drops new notifications instead of blocking the
// fulfillment path.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Sink pushes one encoded notification. key identifies the order.
type Sink interface {
	Push(ctx context.Context, key string, payload []byte) error
}

// NotificationError is a failed push to a sink.
type NotificationError struct {
	Key string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Key, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// LogSink writes notifications to a logger. It is the default sink when no
// receiver is configured.
type LogSink struct {
	lg *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(lg *zap.Logger) *LogSink {
	return &LogSink{lg: lg}
}

// Push implements Sink.
func (s *LogSink) Push(_ context.Context, key string, payload []byte) error {
	s.lg.Info("Order notification",
		zap.String("key", key),
		zap.ByteString("payload", payload),
	)
	return nil
}
