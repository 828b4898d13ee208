package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	leadTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_lead_status_transitions_total",
			Help: "Lead status changes by source and target status",
		},
		[]string{"from", "to"},
	)

	reconcileChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_reconcile_changes_total",
			Help: "Leads written by reconciliation runs",
		},
		[]string{"kind"},
	)

	reportCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_report_cache_lookups_total",
			Help: "Report cache lookups by result",
		},
		[]string{"result"},
	)
)

// Metrics records request count and latency labelled by route pattern.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Route().Path
		httpRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

// MetricsHandler exposes the default registry.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func RecordLeadTransition(from, to string) {
	leadTransitions.WithLabelValues(from, to).Inc()
}

func RecordReconcileChanges(created, updated, failed int) {
	reconcileChanges.WithLabelValues("created").Add(float64(created))
	reconcileChanges.WithLabelValues("updated").Add(float64(updated))
	reconcileChanges.WithLabelValues("failed").Add(float64(failed))
}

func RecordReportCache(hit bool) {
	if hit {
		reportCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	reportCacheLookups.WithLabelValues("miss").Inc()
}
