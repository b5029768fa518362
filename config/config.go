// Package config loads run configuration from defaults, an optional YAML
// file, TPCFIT_ environment variables and command line flags, in rising
// precedence.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/optimize"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/fileio"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
)

// EnvPrefix prefixes every environment variable, e.g. TPCFIT_FIT_WORKERS.
const EnvPrefix = "TPCFIT"

// Config is the validated run configuration.
type Config struct {
	Input   string          `mapstructure:"input"`
	Columns dataset.Columns `mapstructure:"columns"`
	Output  OutputConfig    `mapstructure:"output"`
	Fit     FitConfig       `mapstructure:"fit"`
	Log     LogConfig       `mapstructure:"log"`
}

// OutputConfig selects the artifacts written after a run. Empty paths
// disable the optional ones.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Combined    bool   `mapstructure:"combined"`
	Compression string `mapstructure:"compression"`
	SQLite      string `mapstructure:"sqlite"`
	Summary     string `mapstructure:"summary"`
	MetricsFile string `mapstructure:"metrics_file"`
	PlotsDir    string `mapstructure:"plots_dir"`
}

// FitConfig controls the runner and the solver.
type FitConfig struct {
	Models         []string      `mapstructure:"models"`
	Workers        int           `mapstructure:"workers"`
	Timeout        time.Duration `mapstructure:"timeout"`
	InitMode       string        `mapstructure:"init_mode"`
	FixE           bool          `mapstructure:"fix_e"`
	DefaultE       float64       `mapstructure:"default_e"`
	MaxEvaluations int           `mapstructure:"max_evaluations"`
}

// LogConfig selects the zerolog level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"input":        "input",
	"output-dir":   "output.dir",
	"combined":     "output.combined",
	"compression":  "output.compression",
	"sqlite":       "output.sqlite",
	"summary":      "output.summary",
	"metrics-file": "output.metrics_file",
	"plots-dir":    "output.plots_dir",
	"models":       "fit.models",
	"workers":      "fit.workers",
	"timeout":      "fit.timeout",
	"init-mode":    "fit.init_mode",
	"fix-e":        "fit.fix_e",
	"default-e":    "fit.default_e",
	"max-evals":    "fit.max_evaluations",
	"log-level":    "log.level",
	"log-format":   "log.format",
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag of flags listed in FlagKeys. Flags the set
// does not define are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag --%s", name)
		}
	}
	return nil
}

// Load reads file (when non-empty) into v and returns the validated
// configuration.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Fit.Models = splitList(cfg.Fit.Models)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList accepts both repeated values and comma separated lists.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks every field that can be checked without touching the
// filesystem.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.NewValidationError("input", "input file is required", c.Input)
	}
	if c.Columns.GroupID == "" || c.Columns.Kelvin == "" || c.Columns.Trait == "" || c.Columns.LogTrait == "" {
		return errors.NewValidationError("columns", "group_id, kelvin, trait and log_trait columns must be named", c.Columns)
	}
	if c.Output.Dir == "" {
		return errors.NewValidationError("output.dir", "output directory is required", c.Output.Dir)
	}
	if _, err := c.Codec(); err != nil {
		return err
	}
	if c.Fit.Workers < 0 {
		return errors.NewValidationError("fit.workers", "must not be negative", c.Fit.Workers)
	}
	if c.Fit.Timeout < 0 {
		return errors.NewValidationError("fit.timeout", "must not be negative", c.Fit.Timeout)
	}
	if c.Fit.MaxEvaluations < 0 {
		return errors.NewValidationError("fit.max_evaluations", "must not be negative", c.Fit.MaxEvaluations)
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}
	if _, err := c.InitOptions(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch log.Format(c.Log.Format) {
	case log.FormatJSON, log.FormatConsole:
	default:
		return errors.NewValidationError("log.format", "must be json or console", c.Log.Format)
	}
	return nil
}

// Kinds returns the requested model kinds in reporting order.
func (c *Config) Kinds() ([]model.Kind, error) {
	return model.ParseKinds(c.Fit.Models)
}

// InitOptions returns the start value options.
func (c *Config) InitOptions() (model.InitOptions, error) {
	mode, err := model.ParseInitMode(c.Fit.InitMode)
	if err != nil {
		return model.InitOptions{}, err
	}
	opts := model.InitOptions{Mode: mode, DefaultE: c.Fit.DefaultE, FixE: c.Fit.FixE}
	return opts, opts.Validate()
}

// SolverSettings returns the default solver settings with the configured
// evaluation cap.
func (c *Config) SolverSettings() optimize.Settings {
	s := *optimize.DefaultSettings()
	s.MaxEvaluations = c.Fit.MaxEvaluations
	return s
}

// Codec returns the output compression.
func (c *Config) Codec() (fileio.Codec, error) {
	switch fileio.Codec(strings.ToLower(c.Output.Compression)) {
	case fileio.CodecNone, "":
		return fileio.CodecNone, nil
	case fileio.CodecGzip, "gz":
		return fileio.CodecGzip, nil
	case fileio.CodecZstd, "zst":
		return fileio.CodecZstd, nil
	case fileio.CodecLZ4:
		return fileio.CodecLZ4, nil
	}
	return "", errors.NewValidationError("output.compression", "must be none, gzip, zstd or lz4", c.Output.Compression)
}

// LogOptions returns the zerolog backend options.
func (c *Config) LogOptions() log.Options {
	level, _ := log.ParseLevel(c.Log.Level)
	opts := log.DefaultOptions()
	opts.Level = level
	opts.Format = log.Format(c.Log.Format)
	return opts
}
