package main

import (
	"encoding/json"
	"net/http"

	"github.com/toboto/moltbot-wecom-channel/internal/metrics"
	"github.com/toboto/moltbot-wecom-channel/internal/service"
	"github.com/toboto/moltbot-wecom-channel/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics serves a JSON snapshot of the in-process metrics
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(metrics.Current()); err != nil {
			info := tracing.GetRequestInfo(r.Context())
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
			}).WithError(err).Error("Failed to encode metrics response")
		}
	}
}
