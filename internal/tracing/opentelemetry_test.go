package tracing

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager(Config{Enabled: false}, testLogger())

	require.NoError(t, m.Initialize(context.Background()))
	// Nothing was installed, so shutdown is a no-op too.
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerStdoutExporter(t *testing.T) {
	m := NewManager(Config{
		ServiceName:    "wecombridge-test",
		ServiceVersion: "test",
		Environment:    "test",
		SampleRate:     1.0,
		Enabled:        true,
		UseStdout:      true,
	}, testLogger())

	require.NoError(t, m.Initialize(context.Background()))
	defer func() {
		require.NoError(t, m.Shutdown(context.Background()))
	}()

	// With a real provider installed the span carries valid ids, and
	// StartRequestSpan copies them into the correlation data.
	ctx, span := StartRequestSpan(context.Background(), "callback_request")
	defer span.End()

	info := GetRequestInfo(ctx)
	assert.NotEmpty(t, info.RequestID)
	assert.NotEmpty(t, info.TraceID)
	assert.NotEmpty(t, info.SpanID)
	assert.False(t, info.StartTime.IsZero())
}

func TestStartRequestSpanWithoutProvider(t *testing.T) {
	// Before Initialize (or with tracing disabled) spans are no-ops, but
	// the request still gets an id and start time for log correlation.
	ctx, span := StartRequestSpan(context.Background(), "http_request")
	defer span.End()

	info := GetRequestInfo(ctx)
	assert.NotEmpty(t, info.RequestID)
	assert.False(t, info.StartTime.IsZero())
}

func TestStartRequestSpanNestedKeepsRequestID(t *testing.T) {
	ctx, outer := StartRequestSpan(context.Background(), "http_request")
	defer outer.End()
	outerInfo := GetRequestInfo(ctx)

	ctx, inner := StartRequestSpan(ctx, "callback_request")
	defer inner.End()
	innerInfo := GetRequestInfo(ctx)

	assert.Equal(t, outerInfo.RequestID, innerInfo.RequestID)
	assert.Equal(t, outerInfo.StartTime, innerInfo.StartTime)
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	// Contexts from background jobs carry no span; the helpers must not
	// panic there.
	ctx := context.Background()
	AddSpanAttributes(ctx, attribute.String("callback.type", "wecom"))
	SetSpanStatus(ctx, codes.Error, "delivery failed")
}
