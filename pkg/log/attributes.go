// Package log defines standard attribute keys for fitting operations.
//
// Keys follow a hierarchical naming convention ("fit.model", "data.samples")
// so that log lines from concurrent workers can be filtered per group and per
// model family.

package log

// Run and component context
const (
	// RunIDKey identifies one batch run.
	RunIDKey = "run.id"

	// ComponentKey identifies which package is logging.
	// Examples: "fit", "dataset", "output"
	ComponentKey = "component"

	// FingerprintKey carries the xxhash fingerprint of the input data set.
	FingerprintKey = "data.fingerprint"
)

// Fit context
const (
	// GroupKey identifies the organism/trait group being fitted.
	GroupKey = "fit.group"

	// ModelKey names the model family. Values: "Cubic", "SI", "SII", "SIII"
	ModelKey = "fit.model"

	// FreeParamsKey is the number of varying parameters.
	FreeParamsKey = "fit.free_params"

	// AICKey records the score of a converged fit.
	AICKey = "fit.aic"

	// EvaluationsKey records residual-function evaluations spent by the solver.
	EvaluationsKey = "fit.evaluations"

	// IterationKey records accepted solver iterations.
	IterationKey = "fit.iterations"

	// FailureKindKey records the recoverable failure kind.
	// Values: "convergence", "underdetermined"
	FailureKindKey = "fit.failure"
)

// Data shape
const (
	// SamplesKey indicates the number of observations in a group or data set.
	SamplesKey = "data.samples"

	// GroupsKey indicates the number of groups in the data set.
	GroupsKey = "data.groups"

	// PathKey is a file path read or written.
	PathKey = "io.path"

	// RowsKey is a number of table rows.
	RowsKey = "io.rows"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// WorkersKey is the size of the worker pool.
	WorkersKey = "perf.workers"
)

// Error context
const (
	// ErrorKey carries the error value.
	ErrorKey = "error"

	// StacktraceKey contains stack trace information for debugging.
	// Automatically populated by the zerolog backend for cockroachdb errors.
	StacktraceKey = "error.stacktrace"
)
