// Package dataset partitions raw temperature-response observations into
// per-identifier groups.
//
// One group corresponds to one thermal performance curve (one organism/trait
// identifier). Precomputed starting estimates and categorical metadata are
// taken from the first record of each group; they are constant within a group
// in well-formed input.
package dataset

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

// CelsiusOffset converts Kelvin to Celsius.
const CelsiusOffset = 273.15

// Observation is one measurement of a trait at a temperature.
type Observation struct {
	Kelvin   float64 // temperature in Kelvin, the Schoolfield x
	Celsius  float64 // temperature in Celsius, the cubic x
	Trait    float64 // untransformed trait value, the cubic y
	LogTrait float64 // natural log of the trait value, the Schoolfield y
}

// Estimates are precomputed starting values supplied upstream.
// Absent values are NaN.
type Estimates struct {
	B0 float64
	E  float64
	Th float64
	Tl float64
	Eh float64
	El float64
}

// NoEstimates returns Estimates with every value absent.
func NoEstimates() Estimates {
	nan := math.NaN()
	return Estimates{B0: nan, E: nan, Th: nan, Tl: nan, Eh: nan, El: nan}
}

// Metadata is categorical information passed through to the output unchanged.
type Metadata struct {
	Habitat               string
	ConKingdom            string
	StandardisedTraitName string
	Observations          string
}

// Record is one input row.
type Record struct {
	GroupID     string
	Observation Observation
	Estimates   Estimates
	Metadata    Metadata
}

// Group is the set of observations sharing an identifier.
type Group struct {
	ID           string
	Observations []Observation
	Estimates    Estimates
	Metadata     Metadata
}

// Len returns the number of observations.
func (g *Group) Len() int {
	return len(g.Observations)
}

// Kelvin returns the temperatures in Kelvin.
func (g *Group) Kelvin() []float64 {
	return g.column(func(o Observation) float64 { return o.Kelvin })
}

// Celsius returns the temperatures in Celsius.
func (g *Group) Celsius() []float64 {
	return g.column(func(o Observation) float64 { return o.Celsius })
}

// Traits returns the untransformed trait values.
func (g *Group) Traits() []float64 {
	return g.column(func(o Observation) float64 { return o.Trait })
}

// LogTraits returns the log-transformed trait values.
func (g *Group) LogTraits() []float64 {
	return g.column(func(o Observation) float64 { return o.LogTrait })
}

func (g *Group) column(get func(Observation) float64) []float64 {
	out := make([]float64, len(g.Observations))
	for i, o := range g.Observations {
		out[i] = get(o)
	}
	return out
}

// Partition groups records by identifier. Groups are returned sorted by
// CompareIDs; observations keep their input order.
func Partition(records []Record) ([]*Group, error) {
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.Partition")
	}

	index := make(map[string]*Group)
	for i, rec := range records {
		if rec.GroupID == "" {
			return nil, errors.NewValidationError("GroupID", "empty identifier", i)
		}
		g, ok := index[rec.GroupID]
		if !ok {
			g = &Group{
				ID:        rec.GroupID,
				Estimates: rec.Estimates,
				Metadata:  rec.Metadata,
			}
			index[rec.GroupID] = g
		}
		g.Observations = append(g.Observations, rec.Observation)
	}

	groups := make([]*Group, 0, len(index))
	for _, g := range index {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return CompareIDs(groups[i].ID, groups[j].ID) < 0 })
	return groups, nil
}
