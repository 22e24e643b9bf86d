// Package metrics exposes Prometheus collectors for the server and worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kicho"

// Result label values.
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultCached = "cached"
	ResultHit    = "hit"
	ResultMiss   = "miss"
)

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by method, route pattern and status code.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by method and route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

var HTTPRateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the per-client rate limiter.",
})

var LedgerSummaries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "summaries_total",
	Help:      "Ledger summary requests by result (ok, cached, error).",
}, []string{"result"})

var LedgerSummaryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "summary_duration_seconds",
	Help:      "Time to load transactions and aggregate a ledger summary.",
	Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
})

var LedgerCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "cache_lookups_total",
	Help:      "Ledger summary cache lookups by result (hit, miss).",
}, []string{"result"})

var LedgerCacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "cache_invalidated_entries_total",
	Help:      "Memoized summaries dropped because an owner's transactions changed.",
})

var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Transaction change events published by result.",
}, []string{"result"})

var LedgerExports = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "worker",
	Name:      "ledger_exports_total",
	Help:      "Ledger exports written by the worker by result.",
}, []string{"result"})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Result maps an error to ResultOK or ResultError.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
