package output

import (
	"context"
	"encoding/csv"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/fit"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/fileio"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
)

var testMetadata = dataset.Metadata{
	Habitat:               "Freshwater",
	ConKingdom:            "Animalia",
	StandardisedTraitName: "Respiration Rate",
	Observations:          "21",
}

func testGroup(id string, n int) *dataset.Group {
	truth := []float64{1, 0.6, 305, 3, model.Boltzmann}
	g := &dataset.Group{
		ID:        id,
		Estimates: dataset.Estimates{B0: 1.2, E: 0.55, Th: 303, Tl: 278, Eh: 2.7, El: 0.35},
		Metadata:  testMetadata,
	}
	for i := 0; i < n; i++ {
		x := 280.0 + float64(i)
		y := model.LogRate(model.SII, truth, x)
		g.Observations = append(g.Observations, dataset.Observation{
			Kelvin:   x,
			Celsius:  x - dataset.CelsiusOffset,
			Trait:    math.Exp(y),
			LogTrait: y,
		})
	}
	return g
}

// testReport fits Cubic and SII to a 21-point group "A" and a 3-point
// group "B" that can only produce sentinels.
func testReport(t *testing.T) *fit.Report {
	t.Helper()
	errors.SetWarningHandler(nil)
	logger, _ := log.NewTestLogger(log.LevelError)
	r := fit.NewRunner(fit.WithLogger(logger), fit.WithWorkers(2), fit.WithRunIDFunc(func() string { return "run-42" }))
	report, err := r.Run(context.Background(),
		[]*dataset.Group{testGroup("B", 3), testGroup("A", 21)},
		[]model.Kind{model.Cubic, model.SII})
	require.NoError(t, err)
	return report
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := fileio.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriterPerKind(t *testing.T) {
	report := testReport(t)
	dir := t.TempDir()

	paths, err := NewCSVWriter(dir).Write(report)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "cubic.csv"), filepath.Join(dir, "sii.csv")}, paths)

	sii := readCSV(t, paths[1])
	require.Len(t, sii, 3)
	assert.Equal(t, []string{
		"GroupID", "Model", "b0", "E", "th", "eh", "k", "AIC",
		"Habitat", "ConKingdom", "StandardisedTraitName", "Observations",
	}, sii[0])
	assert.Equal(t, "A", sii[1][0])
	assert.Equal(t, []string{
		"B", "SII", "0", "0", "0", "0", "0", "1e+08",
		"Freshwater", "Animalia", "Respiration Rate", "21",
	}, sii[2])

	cubic := readCSV(t, paths[0])
	require.Len(t, cubic, 3)
	assert.Equal(t, []string{"GroupID", "Model", "Intercept", "x", "x2", "x3", "AIC"}, cubic[0][:7])
	assert.Equal(t, "Cubic", cubic[1][1])
	assert.NotEqual(t, "1e+08", cubic[1][6])
}

func TestCSVWriterCombinedCompressed(t *testing.T) {
	report := testReport(t)
	dir := t.TempDir()

	for _, codec := range []fileio.Codec{fileio.CodecGzip, fileio.CodecZstd, fileio.CodecLZ4} {
		t.Run(string(codec), func(t *testing.T) {
			w := NewCSVWriter(dir, WithCombined(true), WithCompression(codec))
			paths, err := w.Write(report)
			require.NoError(t, err)
			require.Len(t, paths, 1)
			assert.Equal(t, codec, fileio.CodecFor(paths[0]))

			records := readCSV(t, paths[0])
			require.Len(t, records, 5)
			header := records[0]
			assert.Equal(t, CombinedColumns(), header)

			var order [][2]string
			for _, rec := range records[1:] {
				order = append(order, [2]string{rec[0], rec[1]})
			}
			assert.Equal(t, [][2]string{{"A", "Cubic"}, {"A", "SII"}, {"B", "Cubic"}, {"B", "SII"}}, order)

			b0 := indexOf(header, "b0")
			intercept := indexOf(header, "Intercept")
			assert.Empty(t, records[1][b0], "cubic rows have no b0")
			assert.NotEmpty(t, records[1][intercept])
			assert.Empty(t, records[2][intercept], "SII rows have no intercept")
		})
	}
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func TestCSVWriterNilReport(t *testing.T) {
	_, err := NewCSVWriter(t.TempDir()).Write(nil)
	assert.Error(t, err)
}

func TestSQLiteWriter(t *testing.T) {
	report := testReport(t)
	ctx := context.Background()

	w, err := NewSQLiteWriter(":memory:")
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write(ctx, report))

	runs, err := w.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-42", runs[0].RunID)
	assert.Equal(t, 2, runs[0].Groups)

	results, err := w.Results(ctx, "run-42")
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, res := range results {
		switch res.Model {
		case "Cubic":
			require.Len(t, res.Parameters, 4)
			assert.Equal(t, "Intercept", res.Parameters[0].Name)
		case "SII":
			require.Len(t, res.Parameters, 5)
			assert.Equal(t, "k", res.Parameters[4].Name)
		}
		assert.Equal(t, "Animalia", res.ConKingdom)
		if res.GroupID == "B" {
			assert.False(t, res.Converged)
			assert.Equal(t, 1e8, res.AIC)
		}
	}

	failures, err := w.Failures(ctx, "run-42")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, "B", f.GroupID)
		assert.Equal(t, string(errors.FailureUnderdetermined), f.Kind)
	}

	assert.Error(t, w.Write(ctx, report), "a run is stored once")
}

func TestSummaryRoundTrip(t *testing.T) {
	report := testReport(t)
	path := filepath.Join(t.TempDir(), "summary.yaml.gz")

	require.NoError(t, WriteSummary(path, report))
	s, err := ReadSummary(path)
	require.NoError(t, err)

	assert.Equal(t, "run-42", s.RunID)
	assert.Equal(t, 2, s.Groups)
	require.Len(t, s.Models, 2)
	assert.Equal(t, "Cubic", s.Models[0].Model)
	assert.Equal(t, 1, s.Models[0].Converged)
	assert.Equal(t, 1, s.Models[0].Sentinels)
	assert.Equal(t, 1, s.Models[0].BestAIC+s.Models[1].BestAIC, "only A converged")
	require.Len(t, s.Failures, 2)
	assert.Equal(t, "underdetermined", s.Failures[0].Kind)
}
