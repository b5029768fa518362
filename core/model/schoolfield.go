package model

import "math"

const (
	// Boltzmann is the Boltzmann constant in eV/K. It is never varied.
	Boltzmann = 8.617e-5
	// ReferenceKelvin is the temperature at which b0 is the rate (10 °C).
	ReferenceKelvin = 283.15
)

// LogRate evaluates log(rate(x)) for a Schoolfield kind with parameters in
// the kind's order. It returns NaN when the rate is not positive (b0 <= 0)
// or x is not a positive temperature, and for non-Schoolfield kinds.
//
//	rate(x) = b0 * exp(-E/k*(1/x - 1/Tref)) / (1 + H(x) + L(x))
//	H(x)    = exp(eh/k*(1/th - 1/x))
//	L(x)    = exp(el/k*(1/tl - 1/x))
func LogRate(kind Kind, p []float64, x float64) float64 {
	if !kind.IsSchoolfield() || len(p) != len(kindParams[kind]) {
		return math.NaN()
	}
	if !(x > 0) {
		return math.NaN()
	}

	var b0, e, k float64
	high, low := math.Inf(-1), math.Inf(-1)
	inv := 1 / x

	switch kind {
	case SI:
		b0, e, k = p[0], p[1], p[6]
		tl, th, el, eh := p[2], p[3], p[4], p[5]
		high = eh / k * (1/th - inv)
		low = el / k * (1/tl - inv)
	case SII:
		b0, e, k = p[0], p[1], p[4]
		th, eh := p[2], p[3]
		high = eh / k * (1/th - inv)
	case SIII:
		b0, e, k = p[0], p[1], p[4]
		tl, el := p[2], p[3]
		low = el / k * (1/tl - inv)
	}
	if !(b0 > 0) {
		return math.NaN()
	}
	return math.Log(b0) - e/k*(inv-1/ReferenceKelvin) - logOnePlusExp(high, low)
}

// Rate evaluates the untransformed Schoolfield rate.
func Rate(kind Kind, p []float64, x float64) float64 {
	return math.Exp(LogRate(kind, p, x))
}

// Polynomial evaluates a + b*x + c*x^2 + d*x^3 by Horner's rule.
func Polynomial(p []float64, x float64) float64 {
	if len(p) != 4 {
		return math.NaN()
	}
	return p[0] + x*(p[1]+x*(p[2]+x*p[3]))
}

// logOnePlusExp returns log(1 + exp(a) + exp(b)) without overflowing for
// large exponents. -Inf drops a term.
func logOnePlusExp(a, b float64) float64 {
	m := math.Max(0, math.Max(a, b))
	if math.IsNaN(m) || math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if math.IsInf(m, 1) {
		return m
	}
	return m + math.Log(math.Exp(-m)+math.Exp(a-m)+math.Exp(b-m))
}
