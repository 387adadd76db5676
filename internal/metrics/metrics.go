// Package metrics provides Prometheus instrumentation for the margin engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts full evaluations by final (coverage-adjusted) tier.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margin_engine_evaluations_total",
		Help: "Total number of scenario evaluations by adjusted risk tier",
	}, []string{"risk"})

	// RiskEscalations counts evaluations whose tier was raised by weak coverage.
	RiskEscalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margin_engine_risk_escalations_total",
		Help: "Risk tiers escalated because of weak trade statistics coverage",
	}, []string{"coverage_class"})

	GridDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "margin_engine_grid_duration_seconds",
		Help:    "Scenario grid computation time in seconds",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	GridCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "margin_engine_grid_cache_hits_total",
		Help: "Scenario grids served from the result cache",
	})

	GridCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "margin_engine_grid_cache_misses_total",
		Help: "Scenario grids computed because the result cache had no entry",
	})

	// CoverageFallbacks counts lookups that fell back to the no-coverage default.
	CoverageFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "margin_engine_coverage_fallbacks_total",
		Help: "Commodity lookups that used the no-coverage default",
	})

	CoverageRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "margin_engine_coverage_records",
		Help: "Number of commodity coverage records loaded by the last import",
	})

	CoverageImports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margin_engine_coverage_imports_total",
		Help: "Coverage import runs by result",
	}, []string{"result"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "margin_engine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margin_engine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "margin_engine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern (e.g. /api/v1/commodities/{code})
// so commodity codes do not become label values.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
