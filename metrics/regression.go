// Package metrics は残差からの適合度指標を計算する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// SentinelAIC is the score recorded for a failed fit. It is large enough
// that a failed fit never wins a lower-is-better comparison.
const SentinelAIC = 1e8

// SSR は残差平方和 Σ r² を計算する
func SSR(residuals []float64) (float64, error) {
	if len(residuals) == 0 {
		return 0, errors.NewValueError("SSR", "empty residuals")
	}
	return floats.Dot(residuals, residuals), nil
}

// ExpSSR は対数空間の残差を指数変換してから二乗和 Σ exp(r)² を計算する
// Schoolfield の残差 log(fit) - y はこれで元のスケールに戻される。
func ExpSSR(logResiduals []float64) (float64, error) {
	if len(logResiduals) == 0 {
		return 0, errors.NewValueError("ExpSSR", "empty residuals")
	}
	var sum float64
	for _, r := range logResiduals {
		e := math.Exp(r)
		sum += e * e
	}
	return sum, nil
}

// AIC は赤池情報量規準を計算する
//
//	AIC = n*log(2π/n) + n + 2 + n*log(SSR) + 2p
//
// n is the number of residuals, p the free parameter count. A non-finite
// score is reported as a ConvergenceFailure.
func AIC(n int, ssr float64, p int) (float64, error) {
	if n <= 0 {
		return 0, errors.NewValueError("AIC", "no residuals")
	}
	if p < 0 {
		return 0, errors.NewValidationError("p", "must be non-negative", p)
	}
	fn := float64(n)
	aic := fn*math.Log(2*math.Pi/fn) + fn + 2 + fn*math.Log(ssr) + 2*float64(p)
	if !errors.IsFinite(aic) {
		return 0, errors.NewConvergenceFailure("AIC", "non-finite score", 0)
	}
	return aic, nil
}

// ResidualAIC computes SSR from plain residuals and scores it.
func ResidualAIC(residuals []float64, p int) (float64, error) {
	ssr, err := SSR(residuals)
	if err != nil {
		return 0, err
	}
	return AIC(len(residuals), ssr, p)
}

// LogResidualAIC computes SSR from log-space residuals reconstructed to
// the untransformed scale and scores it.
func LogResidualAIC(logResiduals []float64, p int) (float64, error) {
	ssr, err := ExpSSR(logResiduals)
	if err != nil {
		return 0, err
	}
	return AIC(len(logResiduals), ssr, p)
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(residuals []float64) (float64, error) {
	ssr, err := SSR(residuals)
	if err != nil {
		return 0, errors.NewValueError("MSE", "empty residuals")
	}
	return ssr / float64(len(residuals)), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(residuals []float64) (float64, error) {
	mse, err := MSE(residuals)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}
