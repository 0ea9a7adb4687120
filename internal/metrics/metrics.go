// Package metrics provides Prometheus instrumentation for the risk registry.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbd888/riskproxy/internal/state"
)

const namespace = "riskproxy"

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// CallsTotal counts registry operations by operation and outcome.
	CallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total registry calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// CallDuration observes registry operation latency, store lock wait included.
	CallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Registry call duration in seconds.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// EventsPublishedTotal counts post-commit events by type and result.
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total change events handed to sinks by type and result.",
		},
		[]string{"type", "result"},
	)

	// RegistryInitialized is 1 once an owner is set.
	RegistryInitialized = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "registry_initialized",
		Help: "1 if the registry has an owner, 0 otherwise.",
	})
	// Reporters tracks reporter-table size by role.
	Reporters = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "reporters",
		Help: "Number of reporter-table entries by role.",
	}, []string{"role"})
	// FlaggedAddresses tracks address-table size.
	FlaggedAddresses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "flagged_addresses",
		Help: "Number of flagged addresses.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CallsTotal,
		CallDuration,
		EventsPublishedTotal,
		RegistryInitialized,
		Reporters,
		FlaggedAddresses,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		DBWaitDuration,
		GoroutineCount,
	)
}

// ObserveCall records one registry call.
func ObserveCall(operation, outcome string, elapsed time.Duration) {
	CallsTotal.WithLabelValues(operation, outcome).Inc()
	CallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// StatsSource is implemented by state stores.
type StatsSource interface {
	Stats(ctx context.Context) (state.Stats, error)
}

// RecordStats copies a store snapshot into the registry gauges.
func RecordStats(s state.Stats) {
	if s.Initialized {
		RegistryInitialized.Set(1)
	} else {
		RegistryInitialized.Set(0)
	}
	Reporters.WithLabelValues("authority").Set(float64(s.Authorities))
	Reporters.WithLabelValues("reporter").Set(float64(s.Reporters - s.Authorities))
	FlaggedAddresses.Set(float64(s.FlaggedAddresses))
}

// StartStatsCollector periodically samples the store into the registry
// gauges. Call in a goroutine; exits when ctx is done.
func StartStatsCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s, err := src.Stats(ctx); err == nil {
				RecordStats(s)
			}
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// StartDBStatsCollector periodically samples sql.DBStats into Prometheus
// gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
