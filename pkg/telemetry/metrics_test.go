package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFit(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewFitMetrics(registry)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		model   string
		outcome string
		evals   int
	}{
		{"converged SI", "SI", OutcomeConverged, 250},
		{"sentinel SII", "SII", OutcomeSentinel, 0},
		{"converged cubic", "Cubic", OutcomeConverged, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m.RecordFit(tc.model, tc.outcome, 5*time.Millisecond, tc.evals)
			count := testutil.ToFloat64(m.fitsTotal.WithLabelValues(tc.model, tc.outcome))
			assert.Equal(t, float64(1), count)
		})
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.evaluations))
}

func TestRecordFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewFitMetrics(registry)
	require.NoError(t, err)

	m.RecordFailure("SI", "underdetermined")
	m.RecordFailure("SI", "underdetermined")
	m.RecordFailure("SIII", "convergence")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.failuresTotal.WithLabelValues("SI", "underdetermined")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failuresTotal.WithLabelValues("SIII", "convergence")))
}

func TestDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewFitMetrics(registry)
	require.NoError(t, err)
	_, err = NewFitMetrics(registry)
	assert.Error(t, err)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *FitMetrics
	assert.NotPanics(t, func() {
		m.RecordFit("SI", OutcomeConverged, time.Second, 10)
		m.RecordFailure("SI", "convergence")
		m.SetGroups(3)
		m.SetRunDuration(time.Second)
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "never.prom")))
}

func TestWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewFitMetrics(registry)
	require.NoError(t, err)
	m.SetGroups(12)
	m.RecordFit("SII", OutcomeConverged, time.Millisecond, 40)

	path := filepath.Join(t.TempDir(), "tpcfit.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tpcfit_groups 12")
	assert.Contains(t, string(data), `tpcfit_fits_total{model="SII",outcome="converged"} 1`)
}
