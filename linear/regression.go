// Package linear は閉形式の最小二乗回帰を提供する
package linear

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/core/parallel"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

var (
	_ model.Estimator     = (*PolynomialRegression)(nil)
	_ model.Coefficienter = (*PolynomialRegression)(nil)
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const defaultParallelThreshold = 1000

// PolynomialRegression は一変数の多項式回帰モデル
// 係数は次数の昇順 (a, b, c, d for a + b*x + c*x^2 + d*x^3)
type PolynomialRegression struct {
	model.BaseEstimator

	degree            int
	parallelThreshold int

	coef      []float64 // 係数
	residuals []float64 // 学習に使った行の残差 (y - fitted)
	nUsed     int
}

// NewPolynomialRegression は新しい多項式回帰モデルを作成する
func NewPolynomialRegression(opts ...Option) *PolynomialRegression {
	pr := &PolynomialRegression{
		degree:            3,
		parallelThreshold: defaultParallelThreshold,
	}
	for _, opt := range opts {
		opt(pr)
	}
	return pr
}

// Degree returns the polynomial degree.
func (pr *PolynomialRegression) Degree() int {
	return pr.degree
}

// Fit はモデルを学習させる
// Vandermonde 行列の QR 分解で最小二乗解を求める（正規方程式は使わない）
// Rows with a non-finite x or y are skipped.
func (pr *PolynomialRegression) Fit(x, y []float64) error {
	const op = "PolynomialRegression.Fit"
	pr.Reset()

	if pr.degree < 0 {
		return errors.NewValidationError("degree", "must be non-negative", pr.degree)
	}
	if len(x) != len(y) {
		return errors.NewDimensionError(op, len(x), len(y))
	}
	if len(x) == 0 {
		return errors.Wrap(errors.ErrEmptyData, op)
	}

	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if errors.IsFinite(x[i]) && errors.IsFinite(y[i]) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	nCoef := pr.degree + 1
	if nCoef >= len(xs) {
		return errors.NewUnderdeterminedFailure(op, nCoef, len(xs))
	}

	a := pr.vandermonde(xs)
	b := mat.NewVecDense(len(ys), ys)

	var qr mat.QR
	qr.Factorize(a)
	c := mat.NewVecDense(nCoef, nil)
	if err := qr.SolveVecTo(c, false, b); err != nil {
		return errors.WrapConvergenceFailure(op, errors.Wrapf(errors.ErrSingularMatrix, "design matrix (%v)", err), 0)
	}

	coef := make([]float64, nCoef)
	for j := range coef {
		coef[j] = c.AtVec(j)
	}
	if err := errors.CheckNumericalStability(op, coef, 0); err != nil {
		return errors.NewConvergenceFailure(op, "non-finite coefficient", 0)
	}

	pr.coef = coef
	pr.residuals = make([]float64, len(xs))
	for i := range xs {
		pr.residuals[i] = ys[i] - horner(coef, xs[i])
	}
	pr.nUsed = len(xs)

	// モデルを学習済み状態に設定
	pr.SetFitted()
	return nil
}

// vandermonde は計画行列 [1, x, x^2, ..., x^degree] を作る
func (pr *PolynomialRegression) vandermonde(xs []float64) *mat.Dense {
	a := mat.NewDense(len(xs), pr.degree+1, nil)
	parallel.ParallelizeWithThreshold(len(xs), pr.parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j, p := 0, 1.0; j <= pr.degree; j, p = j+1, p*xs[i] {
				a.Set(i, j, p)
			}
		}
	})
	return a
}

// Predict は入力データに対する予測を行う
func (pr *PolynomialRegression) Predict(x []float64) ([]float64, error) {
	if !pr.IsFitted() {
		return nil, errors.NewNotFittedError("PolynomialRegression", "Predict")
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = horner(pr.coef, v)
	}
	return out, nil
}

// Coefficients は学習された係数を次数の昇順で返す
func (pr *PolynomialRegression) Coefficients() []float64 {
	if !pr.IsFitted() {
		return nil
	}
	out := make([]float64, len(pr.coef))
	copy(out, pr.coef)
	return out
}

// Residuals returns y - fitted for the rows used by Fit.
func (pr *PolynomialRegression) Residuals() []float64 {
	if !pr.IsFitted() {
		return nil
	}
	out := make([]float64, len(pr.residuals))
	copy(out, pr.residuals)
	return out
}

// NUsed returns the number of rows Fit used.
func (pr *PolynomialRegression) NUsed() int {
	return pr.nUsed
}

// ResidualSumOfSquares は学習データ上の残差平方和を返す
func (pr *PolynomialRegression) ResidualSumOfSquares() (float64, error) {
	if !pr.IsFitted() {
		return 0, errors.NewNotFittedError("PolynomialRegression", "ResidualSumOfSquares")
	}
	var rss float64
	for _, r := range pr.residuals {
		rss += r * r
	}
	return rss, nil
}

// Score はモデルの決定係数（R²）を計算する
func (pr *PolynomialRegression) Score(x, y []float64) (float64, error) {
	if !pr.IsFitted() {
		return 0, errors.NewNotFittedError("PolynomialRegression", "Score")
	}
	if len(x) != len(y) {
		return 0, errors.NewDimensionError("PolynomialRegression.Score", len(x), len(y))
	}

	var yMean float64
	var n int
	for i := range y {
		if errors.IsFinite(x[i]) && errors.IsFinite(y[i]) {
			yMean += y[i]
			n++
		}
	}
	if n == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "PolynomialRegression.Score")
	}
	yMean /= float64(n)

	// 全変動 (TSS) と残差変動 (RSS) を計算
	var tss, rss float64
	for i := range y {
		if !errors.IsFinite(x[i]) || !errors.IsFinite(y[i]) {
			continue
		}
		d := y[i] - horner(pr.coef, x[i])
		tss += (y[i] - yMean) * (y[i] - yMean)
		rss += d * d
	}

	// R² = 1 - RSS/TSS
	if tss == 0 {
		return 0, errors.Newf("total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}

func horner(coef []float64, x float64) float64 {
	v := 0.0
	for j := len(coef) - 1; j >= 0; j-- {
		v = v*x + coef[j]
	}
	return v
}
