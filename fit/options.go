package fit

import (
	"time"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/optimize"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
	"github.com/YuminosukeSato/tpcfit/pkg/telemetry"
)

// Option is a function that configures Runner
type Option func(*Runner)

// WithWorkers sets the worker pool size; <= 0 means GOMAXPROCS and 1 fits
// sequentially
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithTimeout bounds the wall-clock time of each fit; 0 means no bound
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l log.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics sets the Prometheus metrics recorder
func WithMetrics(m *telemetry.FitMetrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithInitOptions sets how Schoolfield start values are derived
func WithInitOptions(o model.InitOptions) Option {
	return func(r *Runner) {
		r.initOpts = o
	}
}

// WithSolverSettings sets the solver stopping rules and budget
func WithSolverSettings(s optimize.Settings) Option {
	return func(r *Runner) {
		r.settings = s
	}
}

// WithFingerprint records the input data set fingerprint in the report
func WithFingerprint(fp string) Option {
	return func(r *Runner) {
		r.fingerprint = fp
	}
}

// WithRunIDFunc replaces the run identifier generator
func WithRunIDFunc(fn func() string) Option {
	return func(r *Runner) {
		r.newRunID = fn
	}
}
