package linear

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

func cubicData() ([]float64, []float64) {
	x := []float64{5, 10, 15, 20, 25, 30, 35}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 - 0.3*v + 0.05*v*v - 0.001*v*v*v
	}
	return x, y
}

func TestPolynomialRegressionExactCubic(t *testing.T) {
	x, y := cubicData()
	pr := NewPolynomialRegression()
	require.NoError(t, pr.Fit(x, y))

	coef := pr.Coefficients()
	require.Len(t, coef, 4)
	assert.InDelta(t, 2, coef[0], 1e-7)
	assert.InDelta(t, -0.3, coef[1], 1e-8)
	assert.InDelta(t, 0.05, coef[2], 1e-9)
	assert.InDelta(t, -0.001, coef[3], 1e-11)

	rss, err := pr.ResidualSumOfSquares()
	require.NoError(t, err)
	assert.Less(t, rss, 1e-16)
	assert.Equal(t, 7, pr.NUsed())

	pred, err := pr.Predict([]float64{12})
	require.NoError(t, err)
	assert.InDelta(t, 2-0.3*12+0.05*144-0.001*1728, pred[0], 1e-9)
}

func TestPolynomialRegressionDeterministic(t *testing.T) {
	x, y := createBenchmarkData(500)
	first := NewPolynomialRegression()
	require.NoError(t, first.Fit(x, y))
	want := first.Coefficients()

	for i := 0; i < 10; i++ {
		pr := NewPolynomialRegression()
		require.NoError(t, pr.Fit(x, y))
		got := pr.Coefficients()
		for j := range want {
			assert.Equal(t, math.Float64bits(want[j]), math.Float64bits(got[j]), "run %d coefficient %d", i, j)
		}
	}
}

func TestPolynomialRegressionParallelDesignMatrix(t *testing.T) {
	x, y := createBenchmarkData(3000)
	seq := NewPolynomialRegression(WithParallelThreshold(1 << 30))
	par := NewPolynomialRegression(WithParallelThreshold(10))
	require.NoError(t, seq.Fit(x, y))
	require.NoError(t, par.Fit(x, y))
	assert.Equal(t, seq.Coefficients(), par.Coefficients())
}

func TestPolynomialRegressionSkipsNonFinite(t *testing.T) {
	x, y := cubicData()
	x = append(x, math.NaN(), 40)
	y = append(y, 1, math.Inf(1))
	pr := NewPolynomialRegression()
	require.NoError(t, pr.Fit(x, y))
	assert.Equal(t, 7, pr.NUsed())
	assert.Len(t, pr.Residuals(), 7)
}

func TestPolynomialRegressionFailures(t *testing.T) {
	t.Run("underdetermined", func(t *testing.T) {
		pr := NewPolynomialRegression()
		err := pr.Fit([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})
		assert.Equal(t, errors.FailureUnderdetermined, errors.ClassifyFailure(err))
		assert.False(t, pr.IsFitted())
	})

	t.Run("singular", func(t *testing.T) {
		pr := NewPolynomialRegression()
		err := pr.Fit([]float64{2, 2, 2, 2, 2, 2}, []float64{1, 2, 3, 4, 5, 6})
		assert.Equal(t, errors.FailureConvergence, errors.ClassifyFailure(err))
		assert.True(t, errors.Is(err, errors.ErrSingularMatrix))
	})

	t.Run("length mismatch", func(t *testing.T) {
		err := NewPolynomialRegression().Fit([]float64{1, 2}, []float64{1})
		var dim *errors.DimensionError
		assert.True(t, errors.As(err, &dim))
	})

	t.Run("empty", func(t *testing.T) {
		err := NewPolynomialRegression().Fit(nil, nil)
		assert.True(t, errors.Is(err, errors.ErrEmptyData))
	})

	t.Run("not fitted", func(t *testing.T) {
		pr := NewPolynomialRegression()
		_, err := pr.Predict([]float64{1})
		var nf *errors.NotFittedError
		assert.True(t, errors.As(err, &nf))
		assert.Nil(t, pr.Coefficients())
	})
}

func TestPolynomialRegressionScore(t *testing.T) {
	x, y := createBenchmarkData(200)
	pr := NewPolynomialRegression()
	require.NoError(t, pr.Fit(x, y))
	r2, err := pr.Score(x, y)
	require.NoError(t, err)
	assert.Greater(t, r2, 0.99)
}

func TestPolynomialRegressionDegree(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{1, 3, 5, 7}
	pr := NewPolynomialRegression(WithDegree(1))
	require.NoError(t, pr.Fit(x, y))
	assert.Equal(t, 1, pr.Degree())
	assert.InDeltaSlice(t, []float64{1, 2}, pr.Coefficients(), 1e-12)
}
