package fit

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/metrics"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
	"github.com/YuminosukeSato/tpcfit/pkg/telemetry"
)

func TestMain(m *testing.M) {
	errors.SetWarningHandler(nil)
	goleak.VerifyTestMain(m)
}

var (
	siTruth   = []float64{1, 0.6, 275, 305, 0.4, 3, model.Boltzmann}
	siiTruth  = []float64{1, 0.6, 305, 3, model.Boltzmann}
	siiiTruth = []float64{1, 0.6, 275, 0.4, model.Boltzmann}
	// upstream estimates near, but not at, the truth
	nearEstimates = dataset.Estimates{B0: 1.2, E: 0.55, Th: 303, Tl: 278, Eh: 2.7, El: 0.35}
	testMetadata  = dataset.Metadata{
		Habitat:               "Marine",
		ConKingdom:            "Bacteria",
		StandardisedTraitName: "Growth Rate",
		Observations:          "21",
	}
)

// curveGroup samples a Schoolfield curve every kelvin over 280-300 K with
// ±noise alternating.
func curveGroup(id string, kind model.Kind, truth []float64, noise float64) *dataset.Group {
	g := &dataset.Group{ID: id, Estimates: nearEstimates, Metadata: testMetadata}
	for i := 0; i <= 20; i++ {
		x := 280.0 + float64(i)
		e := noise
		if i%2 == 1 {
			e = -e
		}
		y := model.LogRate(kind, truth, x) + e
		g.Observations = append(g.Observations, dataset.Observation{
			Kelvin:   x,
			Celsius:  x - dataset.CelsiusOffset,
			Trait:    math.Exp(y),
			LogTrait: y,
		})
	}
	return g
}

func truncated(g *dataset.Group, id string, n int) *dataset.Group {
	return &dataset.Group{
		ID:           id,
		Observations: append([]dataset.Observation(nil), g.Observations[:n]...),
		Estimates:    g.Estimates,
		Metadata:     g.Metadata,
	}
}

func newTestRunner(t *testing.T, opts ...Option) (*Runner, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	opts = append([]Option{WithLogger(logger), WithWorkers(2)}, opts...)
	return NewRunner(opts...), logger
}

func TestRecoverSchoolfieldSI(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.FitGroup(context.Background(), curveGroup("A", model.SI, siTruth, 1e-6), model.SI)
	require.NoError(t, err)

	require.True(t, res.Converged(), res.Reason())
	assert.NotEqual(t, metrics.SentinelAIC, res.AIC())
	values := res.Values()
	for i, want := range siTruth {
		assert.InEpsilon(t, want, values[i], 0.01, "%s", res.Names()[i])
	}
	assert.Equal(t, 6, res.Free())
	assert.Equal(t, 21, res.Used())
	assert.Positive(t, res.Evaluations())
}

func TestParameterPenaltyPerKind(t *testing.T) {
	r, _ := newTestRunner(t)
	truths := map[model.Kind][]float64{
		model.SI:   siTruth,
		model.SII:  siiTruth,
		model.SIII: siiiTruth,
	}
	for _, kind := range []model.Kind{model.SI, model.SII, model.SIII} {
		t.Run(kind.String(), func(t *testing.T) {
			g := curveGroup("A", kind, truths[kind], 1e-6)
			res, err := r.FitGroup(context.Background(), g, kind)
			require.NoError(t, err)
			require.True(t, res.Converged(), res.Reason())
			assert.Equal(t, kind.FreeParameters(), res.Free())

			// the score is the unpenalized AIC of the same residuals plus 2p
			residuals := make([]float64, len(g.Observations))
			for i, o := range g.Observations {
				residuals[i] = model.LogRate(kind, res.Values(), o.Kelvin) - o.LogTrait
			}
			unpenalized, err := metrics.LogResidualAIC(residuals, 0)
			require.NoError(t, err)
			assert.InDelta(t, 2*float64(kind.FreeParameters()), res.AIC()-unpenalized, 1e-6)
		})
	}
}

func TestOutOfOrderEstimatesAreRecovered(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	r, _ := newTestRunner(t)
	g := curveGroup("A", model.SI, siTruth, 1e-6)
	g.Estimates.El = 0.7 // above E, clipped onto it

	res, err := r.FitGroup(context.Background(), g, model.SI)
	require.NoError(t, err)
	require.True(t, res.Converged(), res.Reason())

	var clip *errors.BoundClipWarning
	require.NotEmpty(t, warnings)
	require.True(t, errors.As(warnings[0], &clip))
	assert.Equal(t, model.ParamEl, clip.Param)

	values := res.Values()
	for i, want := range siTruth {
		assert.InEpsilon(t, want, values[i], 0.01, "%s", res.Names()[i])
	}
	el, _ := res.Parameter(model.ParamEl)
	assert.LessOrEqual(t, el, nearEstimates.E)
}

func TestModelComparisonOnNestedData(t *testing.T) {
	r, _ := newTestRunner(t)
	g := curveGroup("B", model.SII, siiTruth, 0)

	si, err := r.FitGroup(context.Background(), g, model.SI)
	require.NoError(t, err)
	sii, err := r.FitGroup(context.Background(), g, model.SII)
	require.NoError(t, err)

	require.True(t, sii.Converged(), sii.Reason())
	assert.False(t, math.IsInf(sii.AIC(), 0) || math.IsNaN(sii.AIC()))
	assert.LessOrEqual(t, sii.AIC(), si.AIC())

	th, ok := sii.Parameter(model.ParamTh)
	require.True(t, ok)
	assert.InEpsilon(t, 305, th, 1e-6)
}

func TestUnderdeterminedIsSentinel(t *testing.T) {
	r, logger := newTestRunner(t)
	g := truncated(curveGroup("C", model.SI, siTruth, 1e-6), "C", 5)

	res, err := r.FitGroup(context.Background(), g, model.SI)
	require.NoError(t, err)
	assert.True(t, res.IsSentinel())
	assert.Equal(t, errors.FailureUnderdetermined, res.Failure())
	assert.Equal(t, metrics.SentinelAIC, res.AIC())
	assert.Equal(t, make([]float64, 7), res.Values(), "k is zeroed too")
	assert.Zero(t, res.Evaluations())
	assert.True(t, logger.ContainsMessage("Fit failed; recording sentinel"))
	assert.True(t, logger.ContainsField(log.FailureKindKey, "underdetermined"))
}

func TestSentinelInvariant(t *testing.T) {
	r, _ := newTestRunner(t)
	full := curveGroup("D", model.SI, siTruth, 1e-6)
	for _, kind := range model.AllKinds() {
		for n := 1; n < kind.FreeParameters(); n++ {
			res, err := r.FitGroup(context.Background(), truncated(full, "D", n), kind)
			require.NoError(t, err)
			assert.True(t, res.IsSentinel(), "%s with %d observations", kind, n)
			assert.Equal(t, metrics.SentinelAIC, res.AIC())
			for _, v := range res.Values() {
				assert.Zero(t, v)
			}
			assert.Len(t, res.Values(), len(kind.ParameterNames()))
		}
	}
}

func TestUndefinedLogIsConvergenceFailure(t *testing.T) {
	r, _ := newTestRunner(t)
	g := curveGroup("E", model.SII, siiTruth, 0)
	g.Estimates.B0 = -1 // log(b0) undefined everywhere

	res, err := r.FitGroup(context.Background(), g, model.SII)
	require.NoError(t, err)
	assert.Equal(t, errors.FailureConvergence, res.Failure())
	assert.Equal(t, metrics.SentinelAIC, res.AIC())
}

func TestCubicDeterministic(t *testing.T) {
	r, _ := newTestRunner(t)
	g := curveGroup("F", model.SI, siTruth, 1e-6)

	first, err := r.FitGroup(context.Background(), g, model.Cubic)
	require.NoError(t, err)
	require.True(t, first.Converged())
	assert.Equal(t, []string{"Intercept", "x", "x2", "x3"}, first.Names())
	assert.Equal(t, 4, first.Free())

	for i := 0; i < 5; i++ {
		again, err := r.FitGroup(context.Background(), g, model.Cubic)
		require.NoError(t, err)
		for j, v := range first.Values() {
			assert.Equal(t, math.Float64bits(v), math.Float64bits(again.Values()[j]))
		}
		assert.Equal(t, math.Float64bits(first.AIC()), math.Float64bits(again.AIC()))
	}
}

func TestRunOrdersAndPassesMetadata(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := telemetry.NewFitMetrics(registry)
	require.NoError(t, err)

	r, logger := newTestRunner(t, WithMetrics(m), WithFingerprint("abc"), WithRunIDFunc(func() string { return "run-1" }))
	full := curveGroup("Z", model.SI, siTruth, 1e-6)
	groups := []*dataset.Group{
		full,
		truncated(full, "M", 3),
		curveGroup("A", model.SII, siiTruth, 0),
	}

	report, err := r.Run(context.Background(), groups, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "abc", report.Fingerprint)
	assert.Equal(t, 3, report.Groups)

	tables := report.Tables()
	require.Len(t, tables, 4)
	for i, kind := range model.AllKinds() {
		table := tables[i]
		assert.Equal(t, kind, table.Kind())
		require.Equal(t, 3, table.Len())
		assert.Equal(t, "A", table.Row(0).GroupID())
		assert.Equal(t, "M", table.Row(1).GroupID())
		assert.Equal(t, "Z", table.Row(2).GroupID())
		assert.True(t, table.Row(1).IsSentinel(), "3 observations never fit %s", kind)
		assert.Equal(t, testMetadata, table.Row(1).Metadata())

		cols := table.Columns()
		assert.Equal(t, "GroupID", cols[0])
		assert.Equal(t, "AIC", cols[2+len(kind.ParameterNames())])
	}

	var sentinelsForM int
	for _, f := range report.Failures() {
		if f.GroupID == "M" {
			sentinelsForM++
		}
	}
	assert.Equal(t, 4, sentinelsForM)

	combined := report.Combined()
	require.Len(t, combined, 12)
	assert.Equal(t, "A", combined[0].GroupID())
	assert.Equal(t, model.Cubic, combined[0].Kind())
	assert.Equal(t, model.SIII, combined[3].Kind())

	expected := `
# HELP tpcfit_groups Number of groups in the last run
# TYPE tpcfit_groups gauge
tpcfit_groups 3
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "tpcfit_groups"))
	assert.True(t, logger.ContainsMessage("SI models are about to be fitted"))
	assert.True(t, logger.ContainsField(log.RunIDKey, "run-1"))
}

func TestRunSequentialMatchesParallel(t *testing.T) {
	full := curveGroup("P", model.SI, siTruth, 1e-6)
	groups := []*dataset.Group{
		full,
		curveGroup("Q", model.SII, siiTruth, 0),
		truncated(full, "R", 6),
		truncated(full, "S", 12),
	}

	seq, _ := newTestRunner(t, WithWorkers(1))
	par, _ := newTestRunner(t, WithWorkers(8))
	a, err := seq.Run(context.Background(), groups, nil)
	require.NoError(t, err)
	b, err := par.Run(context.Background(), groups, nil)
	require.NoError(t, err)

	ra, rb := a.Combined(), b.Combined()
	require.Equal(t, len(ra), len(rb))
	for i := range ra {
		assert.Equal(t, ra[i].GroupID(), rb[i].GroupID())
		assert.Equal(t, ra[i].Values(), rb[i].Values())
		assert.Equal(t, ra[i].AIC(), rb[i].AIC())
		assert.Equal(t, ra[i].Failure(), rb[i].Failure())
	}
}

func TestPerFitTimeoutIsConvergenceFailure(t *testing.T) {
	r, _ := newTestRunner(t, WithTimeout(time.Nanosecond))
	g := curveGroup("T", model.SI, siTruth, 1e-6)

	res, err := r.FitGroup(context.Background(), g, model.SI)
	require.NoError(t, err)
	assert.Equal(t, errors.FailureConvergence, res.Failure())

	// closed form fits are not bounded by the timeout
	cubic, err := r.FitGroup(context.Background(), g, model.Cubic)
	require.NoError(t, err)
	assert.True(t, cubic.Converged())
}

func TestCancelledRunAborts(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, []*dataset.Group{curveGroup("A", model.SI, siTruth, 1e-6)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsBadInput(t *testing.T) {
	r, _ := newTestRunner(t)
	_, err := r.Run(context.Background(), nil, nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = r.Run(context.Background(), []*dataset.Group{curveGroup("A", model.SI, siTruth, 0)}, []model.Kind{model.Kind(42)})
	assert.Error(t, err)

	_, err = r.FitGroup(context.Background(), nil, model.SI)
	assert.Error(t, err)
	assert.False(t, errors.IsFitFailure(err))
}

func TestFixEReducesPenalty(t *testing.T) {
	opts := model.DefaultInitOptions()
	opts.FixE = true
	r, _ := newTestRunner(t, WithInitOptions(opts))

	res, err := r.FitGroup(context.Background(), curveGroup("A", model.SII, siiTruth, 0), model.SII)
	require.NoError(t, err)
	if res.Converged() {
		assert.Equal(t, 3, res.Free())
		e, _ := res.Parameter(model.ParamE)
		assert.Equal(t, 0.55, e)
	}
}

func TestResultIsImmutable(t *testing.T) {
	res := Sentinel("G", model.SIII, testMetadata, errors.FailureConvergence, "boom")
	v := res.Values()
	v[0] = 42
	n := res.Names()
	n[0] = "changed"
	assert.Zero(t, res.Values()[0])
	assert.Equal(t, "b0", res.Names()[0])
	_, ok := res.Parameter(model.ParamTh)
	assert.False(t, ok, "SIII has no th")
	assert.True(t, strings.Contains(res.Reason(), "boom"))
}

func TestTablesOrderNumericGroupIDs(t *testing.T) {
	var rows []Result
	for _, id := range []string{"10", "2", "1"} {
		rows = append(rows, Sentinel(id, model.SII, testMetadata, errors.FailureConvergence, "x"))
	}
	table := newTable(model.SII, rows)
	report := &Report{tables: []*Table{table, newTable(model.Cubic, []Result{
		Sentinel("10", model.Cubic, testMetadata, errors.FailureConvergence, "x"),
	})}}

	var ids []string
	for _, r := range table.Rows() {
		ids = append(ids, r.GroupID())
	}
	assert.Equal(t, []string{"1", "2", "10"}, ids)

	var combined []string
	for _, r := range report.Combined() {
		combined = append(combined, r.GroupID()+"/"+r.Kind().String())
	}
	assert.Equal(t, []string{"1/SII", "2/SII", "10/Cubic", "10/SII"}, combined)
}
