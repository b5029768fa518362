// Package fit orchestrates model fitting over grouped observations.
//
// For every requested model kind and every group the runner initializes,
// solves and scores independently. Recoverable failures
// (errors.ConvergenceFailure, errors.UnderdeterminedFailure) are replaced by
// the sentinel result and recorded; any other error aborts the run.
package fit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/core/parallel"
	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/linear"
	"github.com/YuminosukeSato/tpcfit/metrics"
	"github.com/YuminosukeSato/tpcfit/optimize"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
	"github.com/YuminosukeSato/tpcfit/pkg/telemetry"
)

// Runner fits model kinds to groups. A Runner holds configuration only and
// may run concurrently.
type Runner struct {
	workers     int
	timeout     time.Duration
	logger      log.Logger
	metrics     *telemetry.FitMetrics
	initOpts    model.InitOptions
	settings    optimize.Settings
	fingerprint string
	newRunID    func() string
}

// NewRunner creates a runner with GOMAXPROCS workers, no per-fit timeout,
// precomputed initialization and the default solver settings.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		initOpts: model.DefaultInitOptions(),
		settings: *optimize.DefaultSettings(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.GetLoggerWithName("fit")
	}
	if r.workers <= 0 {
		r.workers = parallel.DefaultWorkers()
	}
	return r
}

// Run fits every kind to every group and returns one table per kind in
// the order of kinds. An empty kinds list selects every kind.
func (r *Runner) Run(ctx context.Context, groups []*dataset.Group, kinds []model.Kind) (*Report, error) {
	if len(groups) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "fit.Run")
	}
	if len(kinds) == 0 {
		kinds = model.AllKinds()
	}
	for _, k := range kinds {
		if !k.Valid() {
			return nil, errors.NewValidationError("model", "unknown model kind", int(k))
		}
	}

	report := &Report{
		RunID:       r.newRunID(),
		Fingerprint: r.fingerprint,
		StartedAt:   time.Now(),
		Workers:     r.workers,
		Groups:      len(groups),
	}
	logger := r.logger.With(log.RunIDKey, report.RunID)
	logger.Info("Fit run started",
		log.GroupsKey, len(groups),
		log.WorkersKey, r.workers,
		log.FingerprintKey, r.fingerprint,
	)
	r.metrics.SetGroups(len(groups))

	for _, kind := range kinds {
		logger.Info(fmt.Sprintf("%s models are about to be fitted", kind), log.ModelKey, kind.String())
		start := time.Now()

		rows := make([]Result, len(groups))
		err := parallel.ForEach(ctx, len(groups), r.workers, func(ctx context.Context, i int) error {
			res, err := r.fitGroup(ctx, logger, groups[i], kind)
			if err != nil {
				return err
			}
			rows[i] = res
			return nil
		})
		if err != nil {
			logger.Error("Fit run aborted", err, log.ModelKey, kind.String())
			return nil, err
		}

		table := newTable(kind, rows)
		report.tables = append(report.tables, table)
		logger.Info(fmt.Sprintf("%s models fitted", kind),
			log.ModelKey, kind.String(),
			"fit.converged", table.Converged(),
			"fit.sentinels", table.Len()-table.Converged(),
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}

	report.FinishedAt = time.Now()
	r.metrics.SetRunDuration(report.Duration())
	logger.Info("Fit run finished",
		"fit.failures", len(report.Failures()),
		log.DurationMsKey, report.Duration().Milliseconds(),
	)
	return report, nil
}

// FitGroup fits one kind to one group. Recoverable failures come back as
// the sentinel result with a nil error; the error is non-nil only for
// faults that must abort a run (invalid input, panics, cancellation of
// ctx).
func (r *Runner) FitGroup(ctx context.Context, g *dataset.Group, kind model.Kind) (Result, error) {
	if !kind.Valid() {
		return Result{}, errors.NewValidationError("model", "unknown model kind", int(kind))
	}
	return r.fitGroup(ctx, r.logger, g, kind)
}

func (r *Runner) fitGroup(ctx context.Context, logger log.Logger, g *dataset.Group, kind model.Kind) (Result, error) {
	if g == nil {
		return Result{}, errors.NewValueError("fit.FitGroup", "nil group")
	}
	logger = logger.With(log.GroupKey, g.ID, log.ModelKey, kind.String())
	start := time.Now()

	fitCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var res Result
	err := errors.SafeExecute(fmt.Sprintf("fit %s group %s", kind, g.ID), func() error {
		var ferr error
		res, ferr = r.fit(fitCtx, g, kind)
		return ferr
	})

	// a cancelled run is not a per-fit timeout
	if cerr := ctx.Err(); cerr != nil {
		return Result{}, errors.Wrapf(cerr, "fit %s group %s", kind, g.ID)
	}

	if err != nil {
		failure := errors.ClassifyFailure(err)
		if failure == errors.FailureNone {
			return Result{}, err
		}
		res = Sentinel(g.ID, kind, g.Metadata, failure, err.Error())
		logger.Warn("Fit failed; recording sentinel",
			log.FailureKindKey, string(failure),
			log.ErrorKey, err.Error(),
			log.SamplesKey, g.Len(),
		)
		r.metrics.RecordFailure(kind.String(), string(failure))
		r.metrics.RecordFit(kind.String(), telemetry.OutcomeSentinel, time.Since(start), 0)
		return res, nil
	}

	logger.Debug("Fit converged",
		log.AICKey, res.AIC(),
		log.EvaluationsKey, res.Evaluations(),
		log.FreeParamsKey, res.Free(),
		log.SamplesKey, res.Used(),
	)
	r.metrics.RecordFit(kind.String(), telemetry.OutcomeConverged, time.Since(start), res.Evaluations())
	return res, nil
}

func (r *Runner) fit(ctx context.Context, g *dataset.Group, kind model.Kind) (Result, error) {
	if kind == model.Cubic {
		return fitCubic(g)
	}
	return r.fitSchoolfield(ctx, g, kind)
}

// fitCubic fits the raw trait against temperature in Celsius by OLS.
func fitCubic(g *dataset.Group) (Result, error) {
	pr := linear.NewPolynomialRegression()
	if err := pr.Fit(g.Celsius(), g.Traits()); err != nil {
		return Result{}, err
	}
	rss, err := pr.ResidualSumOfSquares()
	if err != nil {
		return Result{}, err
	}
	free := model.Cubic.FreeParameters()
	aic, err := metrics.AIC(pr.NUsed(), rss, free)
	if err != nil {
		return Result{}, err
	}
	rmse, err := metrics.RMSE(pr.Residuals())
	if err != nil {
		return Result{}, err
	}
	return converged(g.ID, model.Cubic, g.Metadata, pr.Coefficients(), aic, rmse, 0, pr.NUsed(), free), nil
}

// fitSchoolfield fits log(rate) to the log trait with the bounded solver
// and scores the residuals on the untransformed scale.
func (r *Runner) fitSchoolfield(ctx context.Context, g *dataset.Group, kind model.Kind) (Result, error) {
	spec, err := model.Initialize(kind, g, r.initOpts)
	if err != nil {
		return Result{}, err
	}

	settings := r.settings
	settings.Op = fmt.Sprintf("fit %s group %s", kind, g.ID)
	sol, err := optimize.LevenbergMarquardt(ctx, optimize.Problem{
		Start: spec.Values(),
		Lower: spec.Lower(),
		Upper: spec.Upper(),
		Fixed: spec.FixedMask(),
		X:     g.Kelvin(),
		Y:     g.LogTraits(),
		Model: spec.Evaluate,
	}, &settings)
	if err != nil {
		return Result{}, err
	}

	aic, err := metrics.LogResidualAIC(sol.Residuals, sol.Free)
	if err != nil {
		return Result{}, err
	}
	rmse, err := metrics.RMSE(sol.Residuals)
	if err != nil {
		return Result{}, err
	}
	return converged(g.ID, kind, g.Metadata, sol.Params, aic, rmse, sol.Evaluations, len(sol.Used), sol.Free), nil
}
