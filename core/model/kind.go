// Package model defines the four thermal-response model families, their
// typed parameter specifications and starting-value derivation.
//
// Parameter order is fixed per kind and is the order used by the solver,
// the output tables and the database:
//
//	Cubic: Intercept, x, x2, x3
//	SI:    b0, E, tl, th, el, eh, k
//	SII:   b0, E, th, eh, k
//	SIII:  b0, E, tl, el, k
package model

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// Kind は模型の種類（タグ付き共用体のタグ）
type Kind int

const (
	// Cubic is a third-degree polynomial fit with OLS on the raw scale.
	Cubic Kind = iota
	// SI is the full Schoolfield model with both inactivation terms.
	SI
	// SII keeps only the high-temperature inactivation term.
	SII
	// SIII keeps only the low-temperature inactivation term.
	SIII
)

// Parameter names as they appear in output columns.
const (
	ParamIntercept = "Intercept"
	ParamX         = "x"
	ParamX2        = "x2"
	ParamX3        = "x3"
	ParamB0        = "b0"
	ParamE         = "E"
	ParamTl        = "tl"
	ParamTh        = "th"
	ParamEl        = "el"
	ParamEh        = "eh"
	ParamK         = "k"
)

var kindNames = map[Kind]string{
	Cubic: "Cubic",
	SI:    "SI",
	SII:   "SII",
	SIII:  "SIII",
}

var kindParams = map[Kind][]string{
	Cubic: {ParamIntercept, ParamX, ParamX2, ParamX3},
	SI:    {ParamB0, ParamE, ParamTl, ParamTh, ParamEl, ParamEh, ParamK},
	SII:   {ParamB0, ParamE, ParamTh, ParamEh, ParamK},
	SIII:  {ParamB0, ParamE, ParamTl, ParamEl, ParamK},
}

// AllKinds returns every model kind in reporting order.
func AllKinds() []Kind {
	return []Kind{Cubic, SI, SII, SIII}
}

// String returns the display name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is one of the four defined kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsSchoolfield reports whether k is fit in log space by the solver.
func (k Kind) IsSchoolfield() bool {
	return k == SI || k == SII || k == SIII
}

// HasHigh reports whether the kind carries the th/eh inactivation term.
func (k Kind) HasHigh() bool {
	return k == SI || k == SII
}

// HasLow reports whether the kind carries the tl/el inactivation term.
func (k Kind) HasLow() bool {
	return k == SI || k == SIII
}

// ParameterNames returns the ordered parameter names of the kind.
func (k Kind) ParameterNames() []string {
	names := kindParams[k]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// FreeParameters returns the number of parameters varied by the default
// initialization (E free, k fixed). Cubic counts its four coefficients.
func (k Kind) FreeParameters() int {
	switch k {
	case Cubic:
		return 4
	case SI:
		return 6
	case SII, SIII:
		return 4
	}
	return 0
}

// FileStem returns the lower-case name used for per-kind output files.
func (k Kind) FileStem() string {
	return strings.ToLower(k.String())
}

// ParseKind は名前（大文字小文字を区別しない）から Kind を返す
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return k, nil
		}
	}
	return 0, errors.NewValidationError("model", "unknown model kind", s)
}

// ParseKinds parses a list of names, keeping reporting order and dropping
// duplicates. An empty list selects every kind.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return AllKinds(), nil
	}
	seen := make(map[Kind]bool, len(names))
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		seen[k] = true
	}
	var out []Kind
	for _, k := range AllKinds() {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out, nil
}
