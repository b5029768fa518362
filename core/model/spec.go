package model

import (
	"math"
)

// Parameter は単一パラメータの開始値・境界・固定フラグ
// An absent bound is ±Inf.
type Parameter struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
	Fixed bool
}

// HasMin reports whether the parameter has a finite lower bound.
func (p Parameter) HasMin() bool { return !math.IsInf(p.Min, -1) }

// HasMax reports whether the parameter has a finite upper bound.
func (p Parameter) HasMax() bool { return !math.IsInf(p.Max, 1) }

// Spec is the typed parameter specification of one model kind for one
// group. Parameters are held in the kind's fixed order and cannot be
// added or renamed after construction.
type Spec struct {
	kind   Kind
	params []Parameter
}

// NewSpec builds a spec with every parameter of kind unbounded, free and
// starting at zero.
func NewSpec(kind Kind) *Spec {
	names := kindParams[kind]
	params := make([]Parameter, len(names))
	for i, n := range names {
		params[i] = Parameter{Name: n, Min: math.Inf(-1), Max: math.Inf(1)}
	}
	return &Spec{kind: kind, params: params}
}

// Kind returns the model kind.
func (s *Spec) Kind() Kind { return s.kind }

// Len returns the number of parameters, fixed ones included.
func (s *Spec) Len() int { return len(s.params) }

// Parameters returns a copy of the ordered parameters.
func (s *Spec) Parameters() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

// Parameter returns the named parameter. ok is false when the kind does
// not define name.
func (s *Spec) Parameter(name string) (p Parameter, ok bool) {
	i := s.index(name)
	if i < 0 {
		return Parameter{}, false
	}
	return s.params[i], true
}

func (s *Spec) index(name string) int {
	for i, p := range s.params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// set updates the named parameter in place; it is only used while a spec
// is being built by Initialize.
func (s *Spec) set(name string, fn func(*Parameter)) {
	if i := s.index(name); i >= 0 {
		fn(&s.params[i])
	}
}

// Values returns the ordered start values.
func (s *Spec) Values() []float64 {
	return s.column(func(p Parameter) float64 { return p.Value })
}

// Lower returns the ordered lower bounds.
func (s *Spec) Lower() []float64 {
	return s.column(func(p Parameter) float64 { return p.Min })
}

// Upper returns the ordered upper bounds.
func (s *Spec) Upper() []float64 {
	return s.column(func(p Parameter) float64 { return p.Max })
}

// FixedMask returns the ordered fixed flags.
func (s *Spec) FixedMask() []bool {
	out := make([]bool, len(s.params))
	for i, p := range s.params {
		out[i] = p.Fixed
	}
	return out
}

// FreeCount returns the number of parameters the solver varies.
func (s *Spec) FreeCount() int {
	n := 0
	for _, p := range s.params {
		if !p.Fixed {
			n++
		}
	}
	return n
}

// Names returns the ordered parameter names.
func (s *Spec) Names() []string {
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.Name
	}
	return out
}

func (s *Spec) column(get func(Parameter) float64) []float64 {
	out := make([]float64, len(s.params))
	for i, p := range s.params {
		out[i] = get(p)
	}
	return out
}

// Evaluate returns the model's fitted value at x: log(rate) for the
// Schoolfield kinds, the polynomial value for Cubic.
func (s *Spec) Evaluate(params []float64, x float64) float64 {
	return FunctionOf(s.kind).Evaluate(params, x)
}

// FunctionOf returns the evaluation function selected by kind.
func FunctionOf(kind Kind) Function {
	if kind == Cubic {
		return FunctionFunc(Polynomial)
	}
	return FunctionFunc(func(p []float64, x float64) float64 {
		return LogRate(kind, p, x)
	})
}
