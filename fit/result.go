package fit

import (
	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/metrics"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// Result is the outcome of one (group, model) fit: either converged
// estimates with their AIC, or the sentinel. It is immutable; accessors
// return copies.
type Result struct {
	groupID     string
	kind        model.Kind
	names       []string
	values      []float64
	aic         float64
	rmse        float64
	metadata    dataset.Metadata
	failure     errors.FailureKind
	reason      string
	evaluations int
	used        int
	free        int
}

// Sentinel returns the result recorded in place of a failed fit: every
// parameter of kind is 0, k included, and the AIC is metrics.SentinelAIC.
func Sentinel(groupID string, kind model.Kind, md dataset.Metadata, failure errors.FailureKind, reason string) Result {
	names := kind.ParameterNames()
	return Result{
		groupID:  groupID,
		kind:     kind,
		names:    names,
		values:   make([]float64, len(names)),
		aic:      metrics.SentinelAIC,
		metadata: md,
		failure:  failure,
		reason:   reason,
	}
}

func converged(groupID string, kind model.Kind, md dataset.Metadata, values []float64, aic, rmse float64, evaluations, used, free int) Result {
	v := make([]float64, len(values))
	copy(v, values)
	return Result{
		groupID:     groupID,
		kind:        kind,
		names:       kind.ParameterNames(),
		values:      v,
		aic:         aic,
		rmse:        rmse,
		metadata:    md,
		evaluations: evaluations,
		used:        used,
		free:        free,
	}
}

// GroupID returns the group identifier.
func (r Result) GroupID() string { return r.groupID }

// Kind returns the model kind.
func (r Result) Kind() model.Kind { return r.kind }

// Names returns the ordered parameter names.
func (r Result) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Values returns the ordered parameter estimates.
func (r Result) Values() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// Parameter returns the named estimate. ok is false when the kind does not
// define name.
func (r Result) Parameter(name string) (v float64, ok bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return 0, false
}

// AIC returns the score; metrics.SentinelAIC for a sentinel.
func (r Result) AIC() float64 { return r.aic }

// RMSE returns the root mean squared residual of the fit on the scale it
// was fit on (log scale for Schoolfield kinds). 0 for a sentinel.
func (r Result) RMSE() float64 { return r.rmse }

// Metadata returns the pass-through categorical metadata.
func (r Result) Metadata() dataset.Metadata { return r.metadata }

// Converged reports whether the fit succeeded.
func (r Result) Converged() bool { return r.failure == errors.FailureNone }

// IsSentinel reports whether the result stands in for a failed fit.
func (r Result) IsSentinel() bool { return !r.Converged() }

// Failure returns the failure kind of a sentinel, FailureNone otherwise.
func (r Result) Failure() errors.FailureKind { return r.failure }

// Reason returns the failure message of a sentinel.
func (r Result) Reason() string { return r.reason }

// Evaluations returns the residual evaluations spent by the solver.
func (r Result) Evaluations() int { return r.evaluations }

// Used returns the number of observations that entered the fit.
func (r Result) Used() int { return r.used }

// Free returns the number of free parameters, the AIC penalty count.
func (r Result) Free() int { return r.free }

// Failure is a recorded recoverable failure.
type Failure struct {
	GroupID string
	Model   model.Kind
	Kind    errors.FailureKind
	Reason  string
}
