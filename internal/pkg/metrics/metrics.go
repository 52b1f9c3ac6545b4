package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics (operational endpoints only)
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ordertrack",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "path"})

	// Ingestion metrics
	PositionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "engine",
		Name:      "positions_ingested_total",
		Help:      "Position samples accepted into tracking sessions",
	})

	PositionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "engine",
		Name:      "positions_rejected_total",
		Help:      "Position samples rejected before any state change",
	}, []string{"reason"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ordertrack",
		Subsystem: "engine",
		Name:      "active_sessions",
		Help:      "Orders currently tracked",
	})

	GeofenceFires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "engine",
		Name:      "geofence_fires_total",
		Help:      "Geofence targets fired",
	})

	// Provider gateway metrics
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "routing",
		Name:      "provider_calls_total",
		Help:      "Calls issued to routing providers",
	}, []string{"provider", "op"})

	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "routing",
		Name:      "provider_failures_total",
		Help:      "Failed routing provider calls",
	}, []string{"provider", "op"})

	ProviderFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "routing",
		Name:      "provider_fallbacks_total",
		Help:      "Closed-form estimates served after all providers failed",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordertrack",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"cache"})
)

// Middleware records request metrics for the operational endpoints.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
