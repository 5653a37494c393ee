// Package metrics exposes Prometheus collectors for the HTTP server, the
// record operations and the dataset access guard.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/maruel/chardb/internal/dataset"
	"github.com/maruel/chardb/internal/records"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry and the collectors registered in it.
//
// It implements records.Observer and dataset.GuardObserver.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	opsTotal        *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	guardWait       prometheus.Histogram
	guardFailures   *prometheus.CounterVec
}

// New returns a Metrics with every collector registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chardb_operations_total",
				Help: "Record operations by outcome",
			},
			[]string{"op", "result"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chardb_operation_duration_seconds",
				Help:    "Record operation duration in seconds, guard wait included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		guardWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chardb_guard_wait_seconds",
				Help:    "Time spent waiting for the data file guard",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5},
			},
		),
		guardFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chardb_guard_failures_total",
				Help: "Failed data file guard acquisitions",
			},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.opsTotal,
		m.opDuration,
		m.guardWait,
		m.guardFailures,
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request. path should be the route pattern,
// not the raw URL, to bound label cardinality.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Observe implements records.Observer.
func (m *Metrics) Observe(_ context.Context, op records.Op, d time.Duration, err error) {
	m.opsTotal.WithLabelValues(string(op), result(err)).Inc()
	m.opDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// ObserveGuard implements dataset.GuardObserver.
func (m *Metrics) ObserveGuard(wait time.Duration, err error) {
	m.guardWait.Observe(wait.Seconds())
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		m.guardFailures.WithLabelValues("timeout").Inc()
	case errors.Is(err, context.Canceled):
		m.guardFailures.WithLabelValues("canceled").Inc()
	default:
		m.guardFailures.WithLabelValues("error").Inc()
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, records.ErrValidation):
		return "invalid"
	case errors.Is(err, records.ErrRecordNotFound), errors.Is(err, dataset.ErrFileNotFound):
		return "not_found"
	case errors.Is(err, dataset.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}
