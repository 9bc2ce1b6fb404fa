package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis failures observed by middleware and handlers.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insureconnect_redis_errors_total",
		Help: "Total number of Redis errors by operation",
	}, []string{"operation"})

	// ActiveWebSockets tracks currently open gateway connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insureconnect_active_websockets",
		Help: "Number of currently open WebSocket connections",
	})
)

// InitMetrics creates the fiberprometheus middleware and registers the
// /metrics endpoint on the given app.
func InitMetrics(app *fiber.App) *fiberprometheus.FiberPrometheus {
	prom := fiberprometheus.New("insureconnect-api")
	prom.RegisterAt(app, "/metrics")
	return prom
}

// MetricsMiddleware returns the HTTP middleware that records request
// counts and latencies for every route.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
