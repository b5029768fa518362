package model

// Function evaluates a model's fitted value at x for an ordered parameter
// vector. Schoolfield kinds return log-scale values.
type Function interface {
	Evaluate(params []float64, x float64) float64
}

// FunctionFunc adapts a plain function to Function.
type FunctionFunc func(params []float64, x float64) float64

// Evaluate calls f.
func (f FunctionFunc) Evaluate(params []float64, x float64) float64 {
	return f(params, x)
}

// Estimator is a closed-form model fit on one-dimensional data.
type Estimator interface {
	Fit(x, y []float64) error
	Predict(x []float64) ([]float64, error)
	IsFitted() bool
}

// Coefficienter exposes fitted coefficients in reporting order.
type Coefficienter interface {
	Coefficients() []float64
}
