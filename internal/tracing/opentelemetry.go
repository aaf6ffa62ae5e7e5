package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "wecombridge"

// Config selects the exporter and sampling for callback spans
type Config struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// Manager owns the tracer provider lifecycle. With tracing disabled it
// stays inert and span helpers fall back to no-op spans.
type Manager struct {
	cfg      Config
	logger   *logrus.Logger
	provider *trace.TracerProvider
}

// NewManager creates a tracing manager; call Initialize to start exporting
func NewManager(cfg Config, logger *logrus.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logger}
}

// Initialize installs the global tracer provider and propagator
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("Tracing is disabled")
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(m.cfg.ServiceName),
			semconv.ServiceVersionKey.String(m.cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(m.cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := m.newExporter(ctx)
	if err != nil {
		return err
	}

	m.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.cfg.SampleRate)),
	)

	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	m.logger.WithFields(logrus.Fields{
		"service":     m.cfg.ServiceName,
		"sample_rate": m.cfg.SampleRate,
	}).Info("Tracing initialized")

	return nil
}

func (m *Manager) newExporter(ctx context.Context) (trace.SpanExporter, error) {
	if m.cfg.UseStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		m.logger.Info("Using stdout trace exporter")
		return exporter, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(m.cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	m.logger.WithField("endpoint", m.cfg.OTLPEndpoint).Info("Using OTLP HTTP trace exporter")
	return exporter, nil
}

// Shutdown flushes and stops the tracer provider
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := m.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	m.logger.Info("Tracing shutdown completed")
	return nil
}

// StartRequestSpan starts a span for an inbound request and seeds the
// RequestInfo correlation data from it. Nested calls (the per-account
// callback middleware inside the server-wide middleware) keep the outer
// request id and start time, but point at the inner span.
func StartRequestSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)

	info := *GetRequestInfo(ctx)
	if info.RequestID == "" {
		info.RequestID = NewRequestID()
	}
	if info.StartTime.IsZero() {
		info.StartTime = time.Now()
	}
	if sc := span.SpanContext(); sc.IsValid() {
		info.TraceID = sc.TraceID().String()
		info.SpanID = sc.SpanID().String()
	}

	return WithRequestInfo(ctx, &info), span
}

// AddSpanAttributes adds attributes to the current span, if it records
func AddSpanAttributes(ctx context.Context, attributes ...attribute.KeyValue) {
	if span := oteltrace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attributes...)
	}
}

// SetSpanStatus sets the status of the current span, if it records
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	if span := oteltrace.SpanFromContext(ctx); span.IsRecording() {
		span.SetStatus(code, description)
	}
}
