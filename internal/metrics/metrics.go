// Package metrics provides Prometheus instrumentation for the trading bot.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts ticks delivered to engines, per symbol.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equitybot_ticks_total",
		Help: "Ticks delivered to strategy engines",
	}, []string{"code"})

	// TicksCoalesced counts ticks overwritten before an engine evaluated them.
	TicksCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equitybot_ticks_coalesced_total",
		Help: "Ticks discarded in favour of a newer tick",
	}, []string{"code"})

	// RuleTriggers counts satisfied rules by kind.
	RuleTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equitybot_rule_triggers_total",
		Help: "Buy and sell rules that were satisfied",
	}, []string{"rule"})

	// OrdersTotal counts order submissions by side and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equitybot_orders_total",
		Help: "Orders submitted to the broker",
	}, []string{"side", "status"})

	// ActiveEngines tracks the number of running strategy engines.
	ActiveEngines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "equitybot_active_engines",
		Help: "Number of running strategy engines",
	})

	// GatewayLatency tracks time spent inside the broker, lock wait included.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "equitybot_gateway_latency_seconds",
		Help:    "Gateway call latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"op"})

	// GatewayErrors counts gateway calls that fell back to a sentinel.
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equitybot_gateway_errors_total",
		Help: "Gateway calls that failed",
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "equitybot_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equitybot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "equitybot_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps the label set bounded.
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
