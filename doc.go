// Package tpcfit fits thermal performance curves: for every group of
// temperature/trait observations it fits a cubic polynomial and the three
// Schoolfield variants (SI, SII, SIII) and scores each fit by AIC.
//
// Fits that cannot be estimated (too few observations, a diverging or
// undefined log likelihood, an exhausted evaluation budget) are recorded
// as the sentinel result: every parameter 0 and AIC 1e8.
//
// # Quick Start
//
//	records, err := dataset.Load("traits.csv", dataset.DefaultColumns())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	groups, err := dataset.Partition(records)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := fit.NewRunner(fit.WithWorkers(8)).Run(ctx, groups, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	paths, err := output.NewCSVWriter("out").Write(report)
//
// The same pipeline is available as a command:
//
//	tpcfit fit --input traits.csv --output-dir out --sqlite out/runs.db
//
// # Packages
//
//   - dataset: CSV loading and grouping of observations
//   - core/model: model kinds, parameter specifications, start values
//   - optimize: bounded Levenberg-Marquardt least squares
//   - linear: closed-form polynomial regression
//   - metrics: AIC and residual summaries
//   - fit: the per-group, per-model runner and its result tables
//   - output: CSV tables, SQLite store, YAML summary
//   - curveplot: per-group PNG plots
//   - config: viper-backed run configuration
//   - core/parallel: bounded worker fan-out
//   - pkg/errors, pkg/log, pkg/fileio, pkg/telemetry: shared infrastructure
package tpcfit
