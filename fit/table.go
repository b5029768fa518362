package fit

import (
	"sort"
	"time"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/dataset"
)

// MetadataColumns are appended after AIC in every table.
var MetadataColumns = []string{"Habitat", "ConKingdom", "StandardisedTraitName", "Observations"}

// Table holds one row per group for a single model kind, ordered by group
// identifier with dataset.CompareIDs. It is built once and never modified.
type Table struct {
	kind model.Kind
	rows []Result
}

func newTable(kind model.Kind, rows []Result) *Table {
	sorted := make([]Result, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return dataset.CompareIDs(sorted[i].groupID, sorted[j].groupID) < 0 })
	return &Table{kind: kind, rows: sorted}
}

// Kind returns the model kind of every row.
func (t *Table) Kind() model.Kind { return t.kind }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns row i.
func (t *Table) Row(i int) Result { return t.rows[i] }

// Rows returns a copy of the rows.
func (t *Table) Rows() []Result {
	out := make([]Result, len(t.rows))
	copy(out, t.rows)
	return out
}

// Columns returns the header: GroupID, Model, the kind's parameters, AIC
// and the metadata columns.
func (t *Table) Columns() []string {
	cols := []string{"GroupID", "Model"}
	cols = append(cols, t.kind.ParameterNames()...)
	cols = append(cols, "AIC")
	return append(cols, MetadataColumns...)
}

// Failures returns the sentinel rows as failure records in row order.
func (t *Table) Failures() []Failure {
	var out []Failure
	for _, r := range t.rows {
		if r.IsSentinel() {
			out = append(out, Failure{GroupID: r.groupID, Model: r.kind, Kind: r.failure, Reason: r.reason})
		}
	}
	return out
}

// Converged returns the number of converged rows.
func (t *Table) Converged() int {
	n := 0
	for _, r := range t.rows {
		if r.Converged() {
			n++
		}
	}
	return n
}

// Report is the outcome of a run: one table per requested kind in
// reporting order.
type Report struct {
	RunID       string
	Fingerprint string
	StartedAt   time.Time
	FinishedAt  time.Time
	Workers     int
	Groups      int

	tables []*Table
}

// Tables returns the tables in reporting order.
func (r *Report) Tables() []*Table {
	out := make([]*Table, len(r.tables))
	copy(out, r.tables)
	return out
}

// Table returns the table of kind.
func (r *Report) Table(kind model.Kind) (*Table, bool) {
	for _, t := range r.tables {
		if t.kind == kind {
			return t, true
		}
	}
	return nil, false
}

// Failures returns every recorded failure, by kind then group.
func (r *Report) Failures() []Failure {
	var out []Failure
	for _, t := range r.tables {
		out = append(out, t.Failures()...)
	}
	return out
}

// Combined returns every row ordered by group identifier and, within a
// group, by kind in reporting order.
func (r *Report) Combined() []Result {
	var out []Result
	for _, t := range r.tables {
		out = append(out, t.rows...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := dataset.CompareIDs(out[i].groupID, out[j].groupID); c != 0 {
			return c < 0
		}
		return out[i].kind < out[j].kind
	})
	return out
}

// Duration returns the wall-clock time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
