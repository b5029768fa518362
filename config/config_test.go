package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/fileio"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
)

func TestDefaults(t *testing.T) {
	v := New()
	v.Set("input", "traits.csv")

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "FinalID", cfg.Columns.GroupID)
	assert.Equal(t, "log_Trait", cfg.Columns.LogTrait)
	assert.Equal(t, ".", cfg.Output.Dir)
	assert.False(t, cfg.Output.Combined)
	assert.Equal(t, 0, cfg.Fit.Workers)
	assert.Equal(t, time.Duration(0), cfg.Fit.Timeout)

	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, model.AllKinds(), kinds)

	opts, err := cfg.InitOptions()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultInitOptions(), opts)

	codec, err := cfg.Codec()
	require.NoError(t, err)
	assert.Equal(t, fileio.CodecNone, codec)

	assert.Equal(t, log.LevelInfo, cfg.LogOptions().Level)
	assert.Equal(t, 0, cfg.SolverSettings().MaxEvaluations)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tpcfit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input: data/traits.csv.gz
columns:
  group_id: ID
output:
  dir: out
  combined: true
  compression: zstd
  sqlite: out/runs.db
fit:
  models: [SIII, cubic]
  workers: 4
  timeout: 2s
  init_mode: simplified
  fix_e: true
log:
  level: debug
  format: console
`), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "data/traits.csv.gz", cfg.Input)
	assert.Equal(t, "ID", cfg.Columns.GroupID)
	assert.Equal(t, "TempKelv", cfg.Columns.Kelvin, "unset columns keep defaults")
	assert.True(t, cfg.Output.Combined)
	assert.Equal(t, "out/runs.db", cfg.Output.SQLite)
	assert.Equal(t, 4, cfg.Fit.Workers)
	assert.Equal(t, 2*time.Second, cfg.Fit.Timeout)

	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []model.Kind{model.Cubic, model.SIII}, kinds)

	opts, err := cfg.InitOptions()
	require.NoError(t, err)
	assert.Equal(t, model.InitSimplified, opts.Mode)
	assert.True(t, opts.FixE)

	codec, err := cfg.Codec()
	require.NoError(t, err)
	assert.Equal(t, fileio.CodecZstd, codec)
	assert.Equal(t, log.FormatConsole, cfg.LogOptions().Format)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tpcfit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input: a.csv\nfit:\n  workers: 2\n"), 0o600))
	t.Setenv("TPCFIT_FIT_WORKERS", "6")
	t.Setenv("TPCFIT_FIT_MODELS", "SI,SII")
	t.Setenv("TPCFIT_FIT_TIMEOUT", "150ms")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Fit.Workers)
	assert.Equal(t, 150*time.Millisecond, cfg.Fit.Timeout)
	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []model.Kind{model.SI, model.SII}, kinds)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("TPCFIT_OUTPUT_DIR", "from-env")

	flags := pflag.NewFlagSet("fit", pflag.ContinueOnError)
	flags.String("input", "", "")
	flags.String("output-dir", "", "")
	flags.StringSlice("models", nil, "")
	flags.Int("workers", 0, "")
	require.NoError(t, flags.Parse([]string{"--input", "x.csv", "--output-dir", "from-flag", "--models", "SII", "--models", "cubic"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "x.csv", cfg.Input)
	assert.Equal(t, "from-flag", cfg.Output.Dir)
	assert.Equal(t, []string{"SII", "cubic"}, cfg.Fit.Models)
	assert.Equal(t, 0, cfg.Fit.Workers, "unchanged flags fall back to defaults")
}

func TestValidation(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value any
		param string
	}{
		{"missing input", "input", "", "input"},
		{"negative workers", "fit.workers", -1, "fit.workers"},
		{"negative timeout", "fit.timeout", "-1s", "fit.timeout"},
		{"unknown model", "fit.models", []string{"SIV"}, "model"},
		{"unknown init mode", "fit.init_mode", "guess", "init_mode"},
		{"unknown compression", "output.compression", "bzip2", "output.compression"},
		{"unknown level", "log.level", "loud", "log.level"},
		{"unknown format", "log.format", "xml", "log.format"},
		{"empty group column", "columns.group_id", "", "columns"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := New()
			v.Set("input", "traits.csv")
			v.Set(tc.key, tc.value)

			_, err := Load(v, "")
			require.Error(t, err)
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr), err.Error())
			assert.Equal(t, tc.param, verr.ParamName)
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
