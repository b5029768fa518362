// Package telemetry provides Prometheus metrics for fitting runs.
//
// A batch run has no scrape endpoint; metrics are written once at the end
// of the run in the node-exporter textfile format.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// Outcome label values.
const (
	OutcomeConverged = "converged"
	OutcomeSentinel  = "sentinel"
)

// Histogram bucket layout
const (
	bucketStart100us = 0.0001
	bucketFactor4    = 4.0
	bucketCount10    = 10
	bucketStart10    = 10.0
	bucketFactor2    = 2.0
	bucketCount12    = 12
)

// FitMetrics contains Prometheus metrics for model fitting. All methods are
// safe on a nil receiver, which records nothing.
type FitMetrics struct {
	registry *prometheus.Registry

	fitsTotal     *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	fitDuration   *prometheus.HistogramVec
	evaluations   *prometheus.HistogramVec
	groups        prometheus.Gauge
	runDuration   prometheus.Gauge
}

// NewFitMetrics creates and registers new fit metrics
func NewFitMetrics(registry *prometheus.Registry) (*FitMetrics, error) {
	m := &FitMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, errors.Wrap(err, "register fit metrics")
	}
	return m, nil
}

func (m *FitMetrics) initMetrics() {
	m.fitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpcfit_fits_total",
			Help: "Total number of (group, model) fits",
		},
		[]string{"model", "outcome"}, // outcome: converged, sentinel
	)

	m.failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpcfit_fit_failures_total",
			Help: "Total number of recoverable fit failures",
		},
		[]string{"model", "kind"}, // kind: convergence, underdetermined
	)

	m.fitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tpcfit_fit_duration_seconds",
			Help: "Time taken by one (group, model) fit",
			// 100µs to ~26s
			Buckets: prometheus.ExponentialBuckets(bucketStart100us, bucketFactor4, bucketCount10),
		},
		[]string{"model"},
	)

	m.evaluations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tpcfit_fit_evaluations",
			Help: "Residual vector evaluations used by one fit",
			// 10 to ~20k, covering the default budget of SI
			Buckets: prometheus.ExponentialBuckets(bucketStart10, bucketFactor2, bucketCount12),
		},
		[]string{"model"},
	)

	m.groups = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tpcfit_groups",
		Help: "Number of groups in the last run",
	})

	m.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tpcfit_run_duration_seconds",
		Help: "Wall-clock duration of the last run",
	})
}

// Describe implements the Collector interface
func (m *FitMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.fitsTotal.Describe(ch)
	m.failuresTotal.Describe(ch)
	m.fitDuration.Describe(ch)
	m.evaluations.Describe(ch)
	m.groups.Describe(ch)
	m.runDuration.Describe(ch)
}

// Collect implements the Collector interface
func (m *FitMetrics) Collect(ch chan<- prometheus.Metric) {
	m.fitsTotal.Collect(ch)
	m.failuresTotal.Collect(ch)
	m.fitDuration.Collect(ch)
	m.evaluations.Collect(ch)
	m.groups.Collect(ch)
	m.runDuration.Collect(ch)
}

// RecordFit records one finished fit. evaluations <= 0 is not observed.
func (m *FitMetrics) RecordFit(model, outcome string, d time.Duration, evaluations int) {
	if m == nil {
		return
	}
	m.fitsTotal.WithLabelValues(model, outcome).Inc()
	m.fitDuration.WithLabelValues(model).Observe(d.Seconds())
	if evaluations > 0 {
		m.evaluations.WithLabelValues(model).Observe(float64(evaluations))
	}
}

// RecordFailure records a recoverable failure by kind.
func (m *FitMetrics) RecordFailure(model, kind string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(model, kind).Inc()
}

// SetGroups records the number of groups of the run.
func (m *FitMetrics) SetGroups(n int) {
	if m == nil {
		return
	}
	m.groups.Set(float64(n))
}

// SetRunDuration records the wall-clock time of the run.
func (m *FitMetrics) SetRunDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Set(d.Seconds())
}

// WriteTextfile writes every metric of the registry to path in the text
// exposition format.
func (m *FitMetrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
