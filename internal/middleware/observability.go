// Package middleware instruments the bridge's HTTP surfaces: a
// server-wide layer for every route, and a callback-specific layer for
// the per-account WeCom endpoints.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/toboto/moltbot-wecom-channel/internal/httputil"
	"github.com/toboto/moltbot-wecom-channel/internal/metrics"
	"github.com/toboto/moltbot-wecom-channel/internal/privacy"
	"github.com/toboto/moltbot-wecom-channel/internal/service"
	"github.com/toboto/moltbot-wecom-channel/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// statusRecorder captures the status code and byte count a handler writes
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += int64(n)
	return n, err
}

// levelForStatus maps a response status to the completion log level
func levelForStatus(status int) logrus.Level {
	switch {
	case status >= 500:
		return logrus.ErrorLevel
	case status >= 400:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// ObservabilityMiddleware wraps every route with a span, request and
// response counters, a latency timer, and start/completion log lines
// keyed by the request id.
func ObservabilityMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartRequestSpan(r.Context(), "http_request")
			defer span.End()
			r = r.WithContext(ctx)

			clientIP := httputil.ClientIP(r)
			tracing.AddSpanAttributes(ctx,
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
				attribute.String("http.route", r.URL.Path),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
				attribute.String("client.address", clientIP),
			)

			info := tracing.GetRequestInfo(ctx)
			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.Path,
				service.LogFieldRemoteIP:  clientIP,
				service.LogFieldUserAgent: r.Header.Get("User-Agent"),
				"content_length":          r.ContentLength,
			}).Debug("HTTP request started")

			metrics.IncrementCounter("http_requests_total", map[string]string{
				"method":   r.Method,
				"endpoint": r.URL.Path,
			}, "Total HTTP requests")
			metrics.IncrementCounter("http_requests_active", nil, "Currently active HTTP requests")
			defer metrics.AddToCounter("http_requests_active", -1, nil, "Currently active HTTP requests")

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := tracing.Duration(ctx)
			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", rec.status),
				attribute.Int64("http.response.size", rec.bytes),
				attribute.Int64("http.request.duration_ms", duration.Milliseconds()),
			)
			if rec.status >= 400 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", rec.status))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			byStatus := map[string]string{
				"method":      r.Method,
				"endpoint":    r.URL.Path,
				"status_code": strconv.Itoa(rec.status),
			}
			metrics.RecordTimer("http_request_duration", duration, byStatus, "HTTP request duration")
			metrics.IncrementCounter("http_responses_total", byStatus, "HTTP responses by status code")

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  info.RequestID,
				service.LogFieldTraceID:    info.TraceID,
				service.LogFieldMethod:     r.Method,
				service.LogFieldURL:        r.URL.Path,
				service.LogFieldStatusCode: rec.status,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldSize:       rec.bytes,
			}).Log(levelForStatus(rec.status), "HTTP request completed")
		})
	}
}

// CallbackObservabilityMiddleware instruments the per-account callback
// subrouters. callbackType is the account's route prefix, so each
// account's encrypted and legacy traffic can be told apart in metrics.
// Fields that can carry recipient ids go through the privacy masker.
func CallbackObservabilityMiddleware(logger *logrus.Logger, callbackType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ctx, span := tracing.StartRequestSpan(r.Context(), "callback_request")
			defer span.End()
			r = r.WithContext(ctx)

			clientIP := httputil.ClientIP(r)
			tracing.AddSpanAttributes(ctx,
				attribute.String("callback.type", callbackType),
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.String()),
				attribute.String("client.address", clientIP),
				attribute.String("http.request.header.content-type", r.Header.Get("Content-Type")),
				attribute.Int64("http.request.content_length", r.ContentLength),
			)

			metrics.IncrementCounter("callback_requests_total", map[string]string{
				"type": callbackType,
			}, "Total callback requests by type")

			info := tracing.GetRequestInfo(ctx)
			logger.WithFields(logrus.Fields(privacy.MaskSensitiveFields(map[string]interface{}{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
				service.LogFieldService:   "callback",
				service.LogFieldComponent: callbackType,
				service.LogFieldRemoteIP:  clientIP,
				"content_type":            r.Header.Get("Content-Type"),
				"content_length":          r.ContentLength,
			}))).Debug("Callback request started")

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(started)
			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", rec.status),
				attribute.Int64("http.response.size", rec.bytes),
				attribute.Int64("callback.processing_duration_ms", elapsed.Milliseconds()),
			)

			metrics.RecordTimer("callback_processing_duration", elapsed, map[string]string{
				"type":        callbackType,
				"status_code": strconv.Itoa(rec.status),
			}, "Callback processing duration")

			if rec.status >= 400 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("Callback failed with HTTP %d", rec.status))
				metrics.IncrementCounter("callback_errors_total", map[string]string{
					"type":        callbackType,
					"status_code": strconv.Itoa(rec.status),
				}, "Callback processing errors")
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "Callback processed successfully")
				metrics.IncrementCounter("callback_success_total", map[string]string{
					"type": callbackType,
				}, "Successful callback processing")
			}

			level := logrus.InfoLevel
			if rec.status >= 400 {
				level = logrus.ErrorLevel
			}
			logger.WithFields(logrus.Fields(privacy.MaskSensitiveFields(map[string]interface{}{
				service.LogFieldRequestID:  info.RequestID,
				service.LogFieldTraceID:    info.TraceID,
				service.LogFieldService:    "callback",
				service.LogFieldComponent:  callbackType,
				service.LogFieldStatusCode: rec.status,
				service.LogFieldDuration:   elapsed.Milliseconds(),
				service.LogFieldSize:       rec.bytes,
			}))).Log(level, "Callback request completed")
		})
	}
}
