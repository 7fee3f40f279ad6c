// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ubillity"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Delete mode label values.
const (
	ModeSingle = "single"
	ModeSeries = "series"
)

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	billsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bills_created_total",
		Help:      "Bill rows inserted, labelled by recurrence.",
	}, []string{"recurrence"})

	billsDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bills_deleted_total",
		Help:      "Bill rows removed, labelled by single or series deletion.",
	}, []string{"mode"})

	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Bill change events handed to the broker.",
	}, []string{"result"})

	sheetSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sheet_syncs_total",
		Help:      "Spreadsheet snapshot runs.",
	}, []string{"result"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		billsCreated,
		billsDeleted,
		eventsPublished,
		sheetSyncs,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Registry exposes the collectors for tests and additional registration.
func Registry() *prometheus.Registry {
	return registry
}

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func BillsCreated(recurrence string, n int) {
	billsCreated.WithLabelValues(recurrence).Add(float64(n))
}

func BillsDeleted(mode string, n int64) {
	billsDeleted.WithLabelValues(mode).Add(float64(n))
}

func EventPublished(result string) {
	eventsPublished.WithLabelValues(result).Inc()
}

func SheetSync(result string) {
	sheetSyncs.WithLabelValues(result).Inc()
}
