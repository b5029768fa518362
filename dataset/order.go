package dataset

import (
	"cmp"
	"math"
	"strconv"
	"strings"
)

// CompareIDs orders group identifiers. Identifiers that both parse as
// finite numbers compare numerically, so "2" sorts before "10"; numeric
// identifiers sort before other identifiers, which compare as strings.
// Numerically equal identifiers such as "2" and "2.0" fall back to string
// order so the ordering stays total.
func CompareIDs(a, b string) int {
	na, aok := numericID(a)
	nb, bok := numericID(b)
	switch {
	case aok && bok:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(a, b)
}

func numericID(id string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(id), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
