package optimize

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// evaluator computes residual vectors in internal coordinates and counts
// how many it has computed.
type evaluator struct {
	problem *Problem
	free    []int
	tr      []transform
	base    []float64
	used    []int
	count   int
}

// params maps internal coordinates to the full external parameter vector.
func (e *evaluator) params(u []float64) []float64 {
	out := make([]float64, len(e.base))
	copy(out, e.base)
	for k, i := range e.free {
		out[i] = e.tr[k].external(u[k])
	}
	return out
}

// all evaluates every observation; rows with non-finite data give NaN.
func (e *evaluator) all(u []float64) []float64 {
	e.count++
	p := e.params(u)
	out := make([]float64, len(e.problem.X))
	for i, x := range e.problem.X {
		y := e.problem.Y[i]
		if !errors.IsFinite(x) || !errors.IsFinite(y) {
			out[i] = math.NaN()
			continue
		}
		out[i] = e.problem.Model(p, x) - y
	}
	return out
}

// residuals evaluates the used observations. finite is false as soon as
// one residual is not finite.
func (e *evaluator) residuals(u []float64) (r []float64, finite bool) {
	e.count++
	p := e.params(u)
	r = make([]float64, len(e.used))
	for k, i := range e.used {
		r[k] = e.problem.Model(p, e.problem.X[i]) - e.problem.Y[i]
		if !errors.IsFinite(r[k]) {
			return nil, false
		}
	}
	return r, true
}

// jacobian fills jac with central differences, falling back to a
// one-sided difference when one side leaves the model's domain. It
// returns false when neither side of some column is finite.
func (e *evaluator) jacobian(u, r []float64, jac *mat.Dense) bool {
	m, _ := jac.Dims()
	shifted := make([]float64, len(u))
	for j := range u {
		h := jacobianStep * math.Max(math.Abs(u[j]), 1)

		copy(shifted, u)
		shifted[j] = u[j] + h
		rp, okp := e.residuals(shifted)
		shifted[j] = u[j] - h
		rm, okm := e.residuals(shifted)

		for i := 0; i < m; i++ {
			switch {
			case okp && okm:
				jac.Set(i, j, (rp[i]-rm[i])/(2*h))
			case okp:
				jac.Set(i, j, (rp[i]-r[i])/h)
			case okm:
				jac.Set(i, j, (r[i]-rm[i])/h)
			default:
				return false
			}
		}
	}
	return true
}
