// Package metrics exposes ledger operation metrics to Prometheus.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/bank-ledger/ledger"
)

// Result label values.
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
	ResultNotFound = "not_found"
	ResultFailed   = "failed"
)

// Collector implements ledger.Recorder and records HTTP traffic.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	rejections *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	auditDrift   prometheus.Gauge
}

var _ ledger.Recorder = (*Collector)(nil)

// NewCollector creates the collector. Call Register before serving /metrics.
func NewCollector(namespace string) *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total ledger mutations by operation and result",
			},
			[]string{"operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Ledger mutation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3s
			},
			[]string{"operation"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Rejected ledger mutations by reason",
			},
			[]string{"operation", "reason"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		auditDrift: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "audit_findings",
				Help:      "Balance cache inconsistencies found by the last audit",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.operations, c.duration, c.rejections,
		c.httpRequests, c.httpDuration, c.auditDrift,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// ObserveOperation records one completed engine operation.
func (c *Collector) ObserveOperation(op string, duration time.Duration, err error) {
	result := Result(err)
	c.operations.WithLabelValues(op, result).Inc()
	c.duration.WithLabelValues(op).Observe(duration.Seconds())
	if result == ResultRejected {
		c.rejections.WithLabelValues(op, reason(err)).Inc()
	}
}

// ObserveHTTP records one served request. route is the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetAuditFindings publishes the finding count of the latest audit run.
func (c *Collector) SetAuditFindings(n int) {
	c.auditDrift.Set(float64(n))
}

// Result classifies an operation error into a result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultApplied
	case ledger.IsNotFound(err):
		return ResultNotFound
	case ledger.IsClientError(err):
		return ResultRejected
	default:
		return ResultFailed
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrNotEligible):
		return "not_eligible"
	default:
		return "other"
	}
}
