package optimize

import "math"

// transform maps one bounded parameter to an unconstrained internal
// variable and back (MINUIT convention).
//
//	both bounds:  v = lo + (sin(u)+1)*(hi-lo)/2
//	lower only:   v = lo - 1 + sqrt(u*u+1)
//	upper only:   v = hi + 1 - sqrt(u*u+1)
// boundNudge is how far, in internal units, a start on a bound is moved
// inside.
const boundNudge = 0.1

type transform struct {
	lo, hi       float64
	hasLo, hasHi bool
}

func newTransform(lo, hi float64) transform {
	return transform{
		lo:    lo,
		hi:    hi,
		hasLo: !math.IsInf(lo, 0) && !math.IsNaN(lo),
		hasHi: !math.IsInf(hi, 0) && !math.IsNaN(hi),
	}
}

// clamp returns v moved onto the feasible interval.
func (t transform) clamp(v float64) float64 {
	if t.hasLo && v < t.lo {
		v = t.lo
	}
	if t.hasHi && v > t.hi {
		v = t.hi
	}
	return v
}

// internal maps an external value to the unconstrained variable.
func (t transform) internal(v float64) float64 {
	v = t.clamp(v)
	switch {
	case t.hasLo && t.hasHi:
		if t.hi == t.lo {
			return 0
		}
		return math.Asin(2*(v-t.lo)/(t.hi-t.lo) - 1)
	case t.hasLo:
		d := v - t.lo + 1
		return math.Sqrt(d*d - 1)
	case t.hasHi:
		d := t.hi - v + 1
		return math.Sqrt(d*d - 1)
	}
	return v
}

// start maps a start value to the internal variable. Values on a bound
// sit where the transform has zero slope, so they are moved inside by
// boundNudge in internal units.
func (t transform) start(v float64) float64 {
	u := t.internal(v)
	switch {
	case t.hasLo && t.hasHi:
		if t.hi == t.lo {
			return u
		}
		if limit := math.Pi/2 - boundNudge; math.Abs(u) > limit {
			return math.Copysign(limit, u)
		}
	case t.hasLo || t.hasHi:
		if u < boundNudge {
			return boundNudge
		}
	}
	return u
}

// external maps the unconstrained variable back into the bounds. Rounding
// can land an ulp outside, so the result is clamped.
func (t transform) external(u float64) float64 {
	switch {
	case t.hasLo && t.hasHi:
		return t.clamp(t.lo + (math.Sin(u)+1)*(t.hi-t.lo)/2)
	case t.hasLo:
		return t.clamp(t.lo - 1 + math.Sqrt(u*u+1))
	case t.hasHi:
		return t.clamp(t.hi + 1 - math.Sqrt(u*u+1))
	}
	return u
}
