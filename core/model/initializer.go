package model

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// InitMode selects how Schoolfield start values are derived.
type InitMode string

const (
	// InitPrecomputed uses the group's upstream estimates, falling back to
	// the simplified value for each absent estimate.
	InitPrecomputed InitMode = "precomputed"
	// InitSimplified derives start values from the raw data alone.
	InitSimplified InitMode = "simplified"
)

// ParseInitMode parses an initialization mode name.
func ParseInitMode(s string) (InitMode, error) {
	switch InitMode(strings.ToLower(strings.TrimSpace(s))) {
	case InitPrecomputed, "":
		return InitPrecomputed, nil
	case InitSimplified:
		return InitSimplified, nil
	}
	return "", errors.NewValidationError("init_mode", "unknown initialization mode", s)
}

// energyOffset separates the El/Eh start values from E.
const energyOffset = 0.5

// InitOptions は開始値導出の設定
type InitOptions struct {
	Mode InitMode
	// DefaultE is the activation energy start when the group has no E
	// estimate.
	DefaultE float64
	// FixE holds E at its start value.
	FixE bool
}

// DefaultInitOptions returns precomputed mode with E free.
func DefaultInitOptions() InitOptions {
	return InitOptions{Mode: InitPrecomputed, DefaultE: 0.65}
}

// Validate checks the options.
func (o InitOptions) Validate() error {
	if o.Mode != InitPrecomputed && o.Mode != InitSimplified {
		return errors.NewValidationError("init_mode", "unknown initialization mode", o.Mode)
	}
	if math.IsNaN(o.DefaultE) || math.IsInf(o.DefaultE, 0) {
		return errors.NewValidationError("default_e", "must be finite", o.DefaultE)
	}
	return nil
}

// Initialize derives the parameter specification of kind for g. It is a
// pure function of its arguments apart from bound-clip warnings sent to
// errors.Warn.
//
// For every Schoolfield kind el is bounded above and eh below by the E
// start value; a start outside its bound is clipped onto it. k is fixed.
// Cubic needs nothing beyond the raw data and gets an unbounded spec.
func Initialize(kind Kind, g *dataset.Group, opts InitOptions) (*Spec, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError("model", "unknown model kind", int(kind))
	}
	if g == nil || g.Len() == 0 {
		return nil, errors.NewValueError("model.Initialize", "group has no observations")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	spec := NewSpec(kind)
	if kind == Cubic {
		return spec, nil
	}

	x, y := g.Kelvin(), g.LogTraits()
	est := g.Estimates

	e := est.E
	if math.IsNaN(e) {
		e = opts.DefaultE
	}

	// simplified start values
	b0 := finiteMin(y)
	th := finiteMax(x)
	tl := finiteMin(x)
	el := e - energyOffset
	eh := e + energyOffset

	if opts.Mode == InitPrecomputed {
		b0 = orDefault(est.B0, b0)
		th = orDefault(est.Th, th)
		tl = orDefault(est.Tl, tl)
		el = orDefault(est.El, el)
		eh = orDefault(est.Eh, eh)
	}

	spec.set(ParamB0, func(p *Parameter) { p.Value = b0 })
	spec.set(ParamE, func(p *Parameter) {
		p.Value = e
		p.Fixed = opts.FixE
	})
	spec.set(ParamTh, func(p *Parameter) { p.Value = th })
	spec.set(ParamTl, func(p *Parameter) { p.Value = tl })
	spec.set(ParamEl, func(p *Parameter) {
		p.Max = e
		p.Value = clip(ParamEl, el, p.Min, p.Max)
	})
	spec.set(ParamEh, func(p *Parameter) {
		p.Min = e
		p.Value = clip(ParamEh, eh, p.Min, p.Max)
	})
	spec.set(ParamK, func(p *Parameter) {
		p.Value = Boltzmann
		p.Fixed = true
	})
	return spec, nil
}

func orDefault(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return v
}

func clip(name string, v, lo, hi float64) float64 {
	switch {
	case v < lo:
		errors.Warn(errors.NewBoundClipWarning(name, v, lo))
		return lo
	case v > hi:
		errors.Warn(errors.NewBoundClipWarning(name, v, hi))
		return hi
	}
	return v
}

func finite(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if errors.IsFinite(x) {
			out = append(out, x)
		}
	}
	return out
}

func finiteMin(v []float64) float64 {
	f := finite(v)
	if len(f) == 0 {
		return math.NaN()
	}
	return floats.Min(f)
}

func finiteMax(v []float64) float64 {
	f := finite(v)
	if len(f) == 0 {
		return math.NaN()
	}
	return floats.Max(f)
}
