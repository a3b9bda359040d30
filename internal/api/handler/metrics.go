package handler

import (
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/renderhub/internal/api/response"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1440
)

// NewCurrentMetricsHandler returns an http.HandlerFunc for GET /api/v1/metrics/current.
func NewCurrentMetricsHandler(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, svc.GetCurrentMetrics(r.Context()))
	}
}

// NewMetricsHistoryHandler returns an http.HandlerFunc for
// GET /api/v1/metrics/history?limit=N.
func NewMetricsHistoryHandler(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				badRequest(w, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		history, err := svc.GetMetricsHistory(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		response.List(w, history, response.ListMeta{Count: len(history), Limit: limit})
	}
}

// NewHealthStatusHandler returns an http.HandlerFunc for GET /api/v1/metrics/health.
func NewHealthStatusHandler(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, svc.GetHealthStatus(r.Context()))
	}
}

// NewPerformanceReportHandler returns an http.HandlerFunc for GET /api/v1/metrics/report.
func NewPerformanceReportHandler(svc MetricsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, svc.GetPerformanceReport(r.Context()))
	}
}
