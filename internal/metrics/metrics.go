// Package metrics provides Prometheus instrumentation for the pool engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DepositsTotal counts principal deposits, partitioned by pool kind.
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obmx_deposits_total",
		Help: "Total number of pool deposits",
	}, []string{"kind"})

	// FillsTotal counts taker fills, partitioned by direction and the
	// liquidity source that served them.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obmx_fills_total",
		Help: "Total number of taker fills",
	}, []string{"direction", "source"})

	// FillLatency is a histogram of taker request execution time.
	FillLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "obmx_fill_latency_seconds",
		Help:    "Taker fill execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"direction"})

	// ClaimsTotal counts proceeds claims.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obmx_claims_total",
		Help: "Total number of proceeds claims",
	})

	// WithdrawsTotal counts principal withdrawals.
	WithdrawsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obmx_withdraws_total",
		Help: "Total number of principal withdrawals",
	})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "obmx_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "obmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "obmx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// EscrowLimitRejections counts deposits rejected by the escrow limiter.
	EscrowLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obmx_escrow_limit_rejections_total",
		Help: "Deposits rejected by the escrow limiter",
	})

	// MarketVolume tracks cumulative fill volume (shares) per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obmx_market_volume_total",
		Help: "Cumulative fill volume in shares",
	}, []string{"market_id", "side"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
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
