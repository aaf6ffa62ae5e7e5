// Package tracing carries per-request correlation data and the
// OpenTelemetry wiring for the bridge's HTTP surfaces.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type requestInfoKey struct{}

// RequestInfo is the correlation data the observability middleware
// attaches to every inbound request. TraceID and SpanID mirror the
// OpenTelemetry span when one is recording, so log lines and exported
// spans can be joined.
type RequestInfo struct {
	RequestID string
	TraceID   string
	SpanID    string
	StartTime time.Time
}

// NewRequestID returns a short random id for log correlation
func NewRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(buf)
}

// WithRequestInfo attaches the correlation data to the context
func WithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// GetRequestInfo returns the request's correlation data. Requests that
// never passed through the observability middleware get a zero value,
// so callers can read fields without a nil check.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo); ok {
		return info
	}
	return &RequestInfo{}
}

// Duration reports how long the request has been in flight
func Duration(ctx context.Context) time.Duration {
	info := GetRequestInfo(ctx)
	if info.StartTime.IsZero() {
		return 0
	}
	return time.Since(info.StartTime)
}
