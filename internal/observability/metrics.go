package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the event
// forwarder.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	deliveriesCreated     prometheus.Counter
	statusUpdatesTotal    *prometheus.CounterVec
	reportDuration        *prometheus.HistogramVec
	eventsForwardedTotal  prometheus.Counter
	eventsDroppedTotal    *prometheus.CounterVec
	eventForwardDuration  prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tracking_api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tracking_api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tracking_api",
				Name:      "deliveries_created_total",
				Help:      "Total number of deliveries registered.",
			},
		),
		statusUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tracking_api",
				Name:      "status_updates_total",
				Help:      "Total number of status transitions appended, by new status.",
			},
			[]string{"status"},
		),
		reportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tracking_api",
				Name:      "report_duration_seconds",
				Help:      "KPI report computation duration in seconds by report kind.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"report"},
		),
		eventsForwardedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tracking_api",
				Name:      "events_forwarded_total",
				Help:      "Total number of delivery events forwarded to the webhook.",
			},
		),
		eventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tracking_api",
				Name:      "events_dropped_total",
				Help:      "Total number of delivery events dropped, by reason.",
			},
			[]string{"reason"},
		),
		eventForwardDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tracking_api",
				Name:      "event_forward_duration_seconds",
				Help:      "Webhook forward duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesCreated,
		m.statusUpdatesTotal,
		m.reportDuration,
		m.eventsForwardedTotal,
		m.eventsDroppedTotal,
		m.eventForwardDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDeliveryCreated() {
	if m == nil {
		return
	}
	m.deliveriesCreated.Inc()
}

func (m *Metrics) IncStatusUpdate(status string) {
	if m == nil {
		return
	}
	label := strings.ToLower(strings.TrimSpace(status))
	if label == "" {
		label = "unknown"
	}
	m.statusUpdatesTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveReportDuration(report string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.reportDuration.WithLabelValues(strings.ToLower(strings.TrimSpace(report))).Observe(seconds)
}

func (m *Metrics) IncEventForwarded() {
	if m == nil {
		return
	}
	m.eventsForwardedTotal.Inc()
}

func (m *Metrics) IncEventDropped(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.eventsDroppedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) ObserveEventForwardDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.eventForwardDuration.Observe(seconds)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
