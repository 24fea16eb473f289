package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/tracker"
)

// MetricsHandler exposes LLM usage accounting.
type MetricsHandler struct {
	tracker *tracker.Tracker
	logger  *zap.Logger
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(tr *tracker.Tracker, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{tracker: tr, logger: logger}
}

// RegisterRoutes registers the metrics handler's routes on the given mux.
func (h *MetricsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /metrics", h.Metrics)
}

// Metrics handles GET /metrics requests with the aggregate call
// summary.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.tracker.Summarize()); err != nil {
		h.logger.Error("Failed to encode metrics response", zap.Error(err))
	}
}
