package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/tpcfit/config"
	"github.com/YuminosukeSato/tpcfit/curveplot"
	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/fit"
	"github.com/YuminosukeSato/tpcfit/output"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
	"github.com/YuminosukeSato/tpcfit/pkg/telemetry"
)

func newFitCommand(v *viper.Viper, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit every requested model to every group of the input table",
		Example: `  tpcfit fit --input traits.csv --output-dir out
  tpcfit fit --input traits.csv.gz --output-dir out --models SI,SII --workers 8 --sqlite out/runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, *configFile)
			if err != nil {
				return err
			}
			logger := setupLogging(cmd, cfg)
			return runFit(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringP("input", "i", "", "Input CSV (.gz, .zst and .lz4 are decompressed; - reads stdin)")
	flags.StringP("output-dir", "o", ".", "Directory for the result tables")
	flags.Bool("combined", false, "Write one combined table instead of one per model")
	flags.String("compression", "none", "Compress result tables: none, gzip, zstd or lz4")
	flags.StringSlice("models", nil, "Models to fit: Cubic, SI, SII, SIII (default all)")
	flags.Int("workers", 0, "Concurrent fits (default GOMAXPROCS; 1 is sequential)")
	flags.Duration("timeout", 0, "Wall-clock limit per fit (0 disables)")
	flags.String("init-mode", "precomputed", "Start values: precomputed or simplified")
	flags.Bool("fix-e", false, "Hold the activation energy at its start value")
	flags.Float64("default-e", 0.65, "Activation energy start when a group has no estimate")
	flags.Int("max-evals", 0, "Residual evaluations per fit (0 means 2000*(free+1))")
	flags.String("sqlite", "", "Also store the run in this SQLite database")
	flags.String("summary", "", "Write a YAML run summary to this path")
	flags.String("metrics-file", "", "Write Prometheus fit metrics in textfile format to this path")
	flags.String("plots-dir", "", "Render one PNG per group into this directory")
	return cmd
}

func runFit(ctx context.Context, cfg *config.Config, logger log.Logger, stdout io.Writer) error {
	start := time.Now()

	records, err := dataset.Load(cfg.Input, cfg.Columns)
	if err != nil {
		return err
	}
	groups, err := dataset.Partition(records)
	if err != nil {
		return err
	}
	fingerprint := dataset.FingerprintHex(dataset.Fingerprint(records))
	logger.Info("Loaded input",
		log.PathKey, cfg.Input,
		log.RowsKey, len(records),
		log.GroupsKey, len(groups),
		log.FingerprintKey, fingerprint,
	)

	kinds, err := cfg.Kinds()
	if err != nil {
		return err
	}
	initOpts, err := cfg.InitOptions()
	if err != nil {
		return err
	}
	codec, err := cfg.Codec()
	if err != nil {
		return err
	}

	var fitMetrics *telemetry.FitMetrics
	if cfg.Output.MetricsFile != "" {
		if fitMetrics, err = telemetry.NewFitMetrics(prometheus.NewRegistry()); err != nil {
			return err
		}
	}

	runner := fit.NewRunner(
		fit.WithWorkers(cfg.Fit.Workers),
		fit.WithTimeout(cfg.Fit.Timeout),
		fit.WithLogger(logger.With(log.ComponentKey, "fit")),
		fit.WithMetrics(fitMetrics),
		fit.WithInitOptions(initOpts),
		fit.WithSolverSettings(cfg.SolverSettings()),
		fit.WithFingerprint(fingerprint),
	)
	report, err := runner.Run(ctx, groups, kinds)
	if err != nil {
		return err
	}

	writer := output.NewCSVWriter(cfg.Output.Dir,
		output.WithCombined(cfg.Output.Combined),
		output.WithCompression(codec),
	)
	paths, err := writer.Write(report)
	if err != nil {
		return err
	}
	for _, p := range paths {
		logger.Info("Wrote result table", log.PathKey, p)
	}

	if cfg.Output.SQLite != "" {
		if err := storeRun(ctx, cfg.Output.SQLite, report); err != nil {
			return err
		}
		logger.Info("Stored run", log.PathKey, cfg.Output.SQLite, log.RunIDKey, report.RunID)
	}
	if cfg.Output.Summary != "" {
		if err := output.WriteSummary(cfg.Output.Summary, report); err != nil {
			return err
		}
		logger.Info("Wrote run summary", log.PathKey, cfg.Output.Summary)
	}
	if cfg.Output.PlotsDir != "" {
		if err := curveplot.New(cfg.Output.PlotsDir, cfg.Fit.Workers).PlotReport(ctx, groups, report); err != nil {
			return err
		}
		logger.Info("Rendered plots", log.PathKey, cfg.Output.PlotsDir, log.GroupsKey, len(groups))
	}
	if cfg.Output.MetricsFile != "" {
		if err := fitMetrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			return err
		}
	}

	printReport(stdout, report)
	logger.Info("Done", log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}

func storeRun(ctx context.Context, path string, report *fit.Report) (err error) {
	w, err := output.NewSQLiteWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return w.Write(ctx, report)
}

func printReport(out io.Writer, report *fit.Report) {
	fmt.Fprintf(out, "run %s: %d groups\n", report.RunID, report.Groups)
	for _, t := range report.Tables() {
		fmt.Fprintf(out, "%-6s %d converged, %d sentinel\n", t.Kind(), t.Converged(), t.Len()-t.Converged())
	}
}
