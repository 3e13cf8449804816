package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CarrierErrors   *prometheus.CounterVec

	SyncRuns        *prometheus.CounterVec
	SyncRows        *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec
	SyncLastSuccess *prometheus.GaugeVec
}

// NewMetrics creates Prometheus metrics registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uadirectory_requests_total",
				Help: "Total number of requests by operation, carrier, and status",
			},
			[]string{"operation", "carrier", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uadirectory_request_duration_seconds",
				Help:    "Request duration in seconds by operation and carrier",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "carrier"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uadirectory_carrier_errors_total",
				Help: "Total carrier API errors by carrier and error type",
			},
			[]string{"carrier", "error_type"},
		),
		SyncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uadirectory_sync_runs_total",
				Help: "Directory sync runs by carrier and outcome",
			},
			[]string{"carrier", "outcome"},
		),
		SyncRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uadirectory_sync_rows_total",
				Help: "Directory rows written by carrier and kind",
			},
			[]string{"carrier", "kind"},
		),
		SyncDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uadirectory_sync_duration_seconds",
				Help:    "Directory sync run duration in seconds by carrier",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"carrier"},
		),
		SyncLastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uadirectory_sync_last_success_timestamp_seconds",
				Help: "Unix time of the last successful directory sync by carrier",
			},
			[]string{"carrier"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, carrier, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, carrier, status).Inc()
	m.RequestDuration.WithLabelValues(operation, carrier).Observe(duration)
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(carrier, errorType string) {
	m.CarrierErrors.WithLabelValues(carrier, errorType).Inc()
}

// RecordSync records the outcome of one directory sync run.
func (m *Metrics) RecordSync(carrier, outcome string, cities, warehouses int, duration time.Duration) {
	m.SyncRuns.WithLabelValues(carrier, outcome).Inc()
	m.SyncRows.WithLabelValues(carrier, "city").Add(float64(cities))
	m.SyncRows.WithLabelValues(carrier, "warehouse").Add(float64(warehouses))
	m.SyncDuration.WithLabelValues(carrier).Observe(duration.Seconds())
	if outcome == "success" {
		m.SyncLastSuccess.WithLabelValues(carrier).SetToCurrentTime()
	}
}
