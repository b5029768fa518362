// Package optimize implements bounded Levenberg-Marquardt least squares.
//
// Bounded parameters are mapped into an unconstrained internal space with
// the MINUIT transforms, fixed parameters are held out of the search, and
// each damped step is solved as the QR least-squares problem
//
//	[ J          ]       [ -r ]
//	[ sqrt(mu*D) ] d  =  [  0 ]
//
// with Marquardt column scaling D and Nielsen's damping update. The solver
// makes exactly one attempt; every way it can fail to produce finite
// estimates is reported as *errors.ConvergenceFailure, and too few usable
// observations as *errors.UnderdeterminedFailure.
package optimize

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

const defaultOp = "optimize.LevenbergMarquardt"

// Problem is one bounded least-squares fit. Residuals are
// Model(params, X[i]) - Y[i].
type Problem struct {
	Start []float64
	// Lower and Upper hold per-parameter bounds; nil or ±Inf means none.
	Lower []float64
	Upper []float64
	// Fixed parameters keep their start value.
	Fixed []bool
	X     []float64
	Y     []float64
	Model func(params []float64, x float64) float64
}

// Settings control the stopping rules and budgets.
type Settings struct {
	// MaxEvaluations caps residual vector evaluations; 0 means
	// 2000*(free+1).
	MaxEvaluations int
	// InitialDamping is the starting mu.
	InitialDamping float64
	// FunctionTolerance stops on relative cost reduction.
	FunctionTolerance float64
	// StepTolerance stops on step length relative to the internal vector.
	StepTolerance float64
	// GradientTolerance stops on the gradient max-norm relative to cost.
	GradientTolerance float64
	// Op names the caller in failures.
	Op string
}

// DefaultSettings returns the standard stopping rules.
func DefaultSettings() *Settings {
	return &Settings{
		InitialDamping:    1e-3,
		FunctionTolerance: 1e-15,
		StepTolerance:     1e-12,
		GradientTolerance: 1e-15,
		Op:                defaultOp,
	}
}

func (s *Settings) withDefaults() Settings {
	d := *DefaultSettings()
	if s == nil {
		return d
	}
	out := *s
	if out.InitialDamping <= 0 {
		out.InitialDamping = d.InitialDamping
	}
	if out.FunctionTolerance <= 0 {
		out.FunctionTolerance = d.FunctionTolerance
	}
	if out.StepTolerance <= 0 {
		out.StepTolerance = d.StepTolerance
	}
	if out.GradientTolerance <= 0 {
		out.GradientTolerance = d.GradientTolerance
	}
	if out.Op == "" {
		out.Op = d.Op
	}
	return out
}

// Status tells which rule stopped a successful fit.
type Status int

const (
	FunctionConvergence Status = iota + 1
	StepConvergence
	GradientConvergence
	PredictionConvergence
	ZeroResidual
	NothingToFit
)

func (s Status) String() string {
	switch s {
	case FunctionConvergence:
		return "function convergence"
	case StepConvergence:
		return "step convergence"
	case GradientConvergence:
		return "gradient convergence"
	case PredictionConvergence:
		return "negligible predicted reduction"
	case ZeroResidual:
		return "zero residual"
	case NothingToFit:
		return "no free parameters"
	}
	return "unknown"
}

// Result is a converged fit.
type Result struct {
	// Params is the full parameter vector, fixed parameters included.
	Params []float64
	// Residuals are the residuals of the observations in Used, in order.
	Residuals []float64
	// Used indexes the observations whose residual was finite at the start.
	Used        []int
	Cost        float64
	Free        int
	Evaluations int
	Iterations  int
	Status      Status
}

const (
	jacobianStep = 6.055e-6 // about cbrt(machine epsilon)
	maxDamping   = 1e16
	zeroCost     = 1e-30
	minScale     = 1e-12
)

// LevenbergMarquardt minimizes half the sum of squared residuals of p.
// settings may be nil. ctx bounds the wall-clock time of the fit; its
// expiry is reported as a ConvergenceFailure.
func LevenbergMarquardt(ctx context.Context, p Problem, settings *Settings) (*Result, error) {
	s := settings.withDefaults()
	if err := p.validate(s.Op); err != nil {
		return nil, err
	}

	var free []int
	for i := range p.Start {
		if p.Fixed == nil || !p.Fixed[i] {
			free = append(free, i)
		}
	}
	n := len(free)

	usable := 0
	for i := range p.X {
		if errors.IsFinite(p.X[i]) && errors.IsFinite(p.Y[i]) {
			usable++
		}
	}
	if n >= usable {
		return nil, errors.NewUnderdeterminedFailure(s.Op, n, usable)
	}

	maxEval := s.MaxEvaluations
	if maxEval <= 0 {
		maxEval = 2000 * (n + 1)
	}

	tr := make([]transform, n)
	u := make([]float64, n)
	base := make([]float64, len(p.Start))
	copy(base, p.Start)
	for k, i := range free {
		tr[k] = newTransform(bound(p.Lower, i, math.Inf(-1)), bound(p.Upper, i, math.Inf(1)))
		base[i] = tr[k].clamp(base[i])
		u[k] = tr[k].start(base[i])
	}

	ev := &evaluator{problem: &p, free: free, tr: tr, base: base}

	// residuals that are undefined at the start are left out of the fit
	r0 := ev.all(u)
	for i, v := range r0 {
		if errors.IsFinite(v) {
			ev.used = append(ev.used, i)
		}
	}
	m := len(ev.used)
	if m <= n {
		return nil, errors.NewConvergenceFailure(s.Op, fmt.Sprintf("%d finite residuals at the start point for %d free parameters", m, n), ev.count)
	}
	r := make([]float64, m)
	for k, i := range ev.used {
		r[k] = r0[i]
	}
	cost := halfSquares(r)

	res := &Result{Free: n}
	finish := func(status Status) (*Result, error) {
		params := ev.params(u)
		if err := errors.CheckNumericalStability(s.Op, params, res.Iterations); err != nil {
			return nil, errors.NewConvergenceFailure(s.Op, "non-finite parameter estimate", ev.count)
		}
		if err := errors.CheckNumericalStability(s.Op, r, res.Iterations); err != nil {
			return nil, errors.NewConvergenceFailure(s.Op, "non-finite residual", ev.count)
		}
		res.Params = params
		res.Residuals = r
		res.Used = append([]int(nil), ev.used...)
		res.Cost = cost
		res.Evaluations = ev.count
		res.Status = status
		return res, nil
	}
	fail := func(reason string) (*Result, error) {
		return nil, errors.NewConvergenceFailure(s.Op, reason, ev.count)
	}
	singular := func(what string) (*Result, error) {
		return nil, errors.WrapConvergenceFailure(s.Op, errors.Wrap(errors.ErrSingularMatrix, what), ev.count)
	}

	if n == 0 {
		return finish(NothingToFit)
	}
	if cost < zeroCost {
		return finish(ZeroResidual)
	}

	jac := mat.NewDense(m, n, nil)
	g := make([]float64, n)
	diag := make([]float64, n)
	scale := make([]float64, n)
	mu, nu := s.InitialDamping, 2.0

	for {
		if err := ctx.Err(); err != nil {
			return fail(err.Error())
		}
		if ev.count >= maxEval {
			return fail(fmt.Sprintf("evaluation budget of %d exhausted", maxEval))
		}
		res.Iterations++

		if !ev.jacobian(u, r, jac) {
			return fail("jacobian cannot be evaluated")
		}
		if !finiteMatrix(jac) {
			return fail("non-finite jacobian")
		}

		// g = J^T r, Marquardt scaling from the running column norms
		for j := 0; j < n; j++ {
			col := mat.Col(nil, j, jac)
			g[j] = floats.Dot(col, r)
			diag[j] = math.Max(diag[j], floats.Dot(col, col))
		}
		dmax := floats.Max(diag)
		if !(dmax > 0) {
			return singular("jacobian is identically zero")
		}
		for j := range scale {
			scale[j] = math.Max(diag[j], minScale*dmax)
		}

		if floats.Norm(g, math.Inf(1)) <= s.GradientTolerance*math.Max(1, cost) {
			return finish(GradientConvergence)
		}

		for {
			if err := ctx.Err(); err != nil {
				return fail(err.Error())
			}
			if ev.count >= maxEval {
				return fail(fmt.Sprintf("evaluation budget of %d exhausted", maxEval))
			}

			d, ok := dampedStep(jac, r, scale, mu)
			if !ok {
				mu *= nu
				nu *= 2
				if mu > maxDamping {
					return singular("damped normal system")
				}
				continue
			}

			trial := make([]float64, n)
			floats.AddTo(trial, u, d)
			rn, finite := ev.residuals(trial)

			var newCost, pred, rho float64
			rho = -1
			if finite {
				newCost = halfSquares(rn)
				// predicted reduction 0.5*d^T(mu*D*d - g)
				for j := range d {
					pred += d[j] * (mu*scale[j]*d[j] - g[j])
				}
				pred *= 0.5
				if pred > 0 {
					rho = (cost - newCost) / pred
				}
			}

			if rho > 0 {
				rel := (cost - newCost) / math.Max(cost, math.SmallestNonzeroFloat64)
				stepNorm := floats.Norm(d, 2)
				uNorm := floats.Norm(u, 2)
				u, r, cost = trial, rn, newCost
				mu *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
				nu = 2

				switch {
				case cost < zeroCost:
					return finish(ZeroResidual)
				case rel < s.FunctionTolerance:
					return finish(FunctionConvergence)
				case stepNorm <= s.StepTolerance*(uNorm+s.StepTolerance):
					return finish(StepConvergence)
				}
				break
			}
			if finite && pred <= 1e-15*cost {
				return finish(PredictionConvergence)
			}
			mu *= nu
			nu *= 2
			if mu > maxDamping {
				return singular("damping diverged")
			}
		}
	}
}

// dampedStep solves the augmented system by QR. ok is false when the
// factorization is singular or the step is not finite.
func dampedStep(jac *mat.Dense, r, scale []float64, mu float64) ([]float64, bool) {
	m, n := jac.Dims()
	a := mat.NewDense(m+n, n, nil)
	a.Slice(0, m, 0, n).(*mat.Dense).Copy(jac)
	for j := 0; j < n; j++ {
		a.Set(m+j, j, math.Sqrt(mu*scale[j]))
	}
	b := mat.NewVecDense(m+n, nil)
	for i, v := range r {
		b.SetVec(i, -v)
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, false
	}
	d := make([]float64, n)
	for j := range d {
		d[j] = x.AtVec(j)
		if !errors.IsFinite(d[j]) {
			return nil, false
		}
	}
	return d, true
}

func (p *Problem) validate(op string) error {
	if p.Model == nil {
		return errors.NewValueError(op, "model function is nil")
	}
	if len(p.X) != len(p.Y) {
		return errors.NewDimensionError(op, len(p.X), len(p.Y))
	}
	np := len(p.Start)
	if p.Lower != nil && len(p.Lower) != np {
		return errors.NewDimensionError(op, np, len(p.Lower))
	}
	if p.Upper != nil && len(p.Upper) != np {
		return errors.NewDimensionError(op, np, len(p.Upper))
	}
	if p.Fixed != nil && len(p.Fixed) != np {
		return errors.NewDimensionError(op, np, len(p.Fixed))
	}
	for i := 0; i < np; i++ {
		lo, hi := bound(p.Lower, i, math.Inf(-1)), bound(p.Upper, i, math.Inf(1))
		if lo > hi {
			return errors.NewValidationError("bounds", "lower bound exceeds upper bound", []float64{lo, hi})
		}
	}
	return nil
}

func bound(b []float64, i int, absent float64) float64 {
	if b == nil || math.IsNaN(b[i]) {
		return absent
	}
	return b[i]
}

func halfSquares(r []float64) float64 {
	return 0.5 * floats.Dot(r, r)
}

func finiteMatrix(a *mat.Dense) bool {
	m, n := a.Dims()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if !errors.IsFinite(a.At(i, j)) {
				return false
			}
		}
	}
	return true
}
