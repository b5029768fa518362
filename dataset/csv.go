package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/fileio"
)

// Columns maps input header names to record fields.
// An empty name for an optional column means the column is not read.
type Columns struct {
	GroupID  string `mapstructure:"group_id"`
	Kelvin   string `mapstructure:"kelvin"`
	Celsius  string `mapstructure:"celsius"`
	Trait    string `mapstructure:"trait"`
	LogTrait string `mapstructure:"log_trait"`

	B0 string `mapstructure:"b0"`
	E  string `mapstructure:"e"`
	Th string `mapstructure:"th"`
	Tl string `mapstructure:"tl"`
	Eh string `mapstructure:"eh"`
	El string `mapstructure:"el"`

	Habitat               string `mapstructure:"habitat"`
	ConKingdom            string `mapstructure:"con_kingdom"`
	StandardisedTraitName string `mapstructure:"trait_name"`
	Observations          string `mapstructure:"observations"`
}

// DefaultColumns returns the header names of the tidy trait table.
func DefaultColumns() Columns {
	return Columns{
		GroupID:               "FinalID",
		Kelvin:                "TempKelv",
		Celsius:               "ConTemp",
		Trait:                 "OriginalTraitValue",
		LogTrait:              "log_Trait",
		B0:                    "B0",
		E:                     "E",
		Th:                    "Th",
		Tl:                    "Tl",
		Eh:                    "Eh",
		El:                    "El",
		Habitat:               "Habitat",
		ConKingdom:            "ConKingdom",
		StandardisedTraitName: "StandardisedTraitName",
		Observations:          "Observations",
	}
}

// missing cell spellings produced by R and pandas exports
var missingTokens = map[string]struct{}{
	"": {}, "NA": {}, "NaN": {}, "nan": {}, "null": {}, "NULL": {}, "None": {},
}

type header map[string]int

// index returns the position of name, or -1 when name is empty or absent.
func (h header) index(name string) int {
	if name == "" {
		return -1
	}
	if i, ok := h[name]; ok {
		return i
	}
	return -1
}

func (h header) required(name string) (int, error) {
	i := h.index(name)
	if i < 0 {
		return -1, errors.NewValidationError(name, "required column missing from header", nil)
	}
	return i, nil
}

type columnIndex struct {
	id, kelvin, celsius, trait, logTrait int
	b0, e, th, tl, eh, el                int
	habitat, kingdom, traitName, obs     int
}

func resolve(h header, cols Columns) (columnIndex, error) {
	var ci columnIndex
	var err error
	if ci.id, err = h.required(cols.GroupID); err != nil {
		return ci, err
	}
	if ci.kelvin, err = h.required(cols.Kelvin); err != nil {
		return ci, err
	}
	if ci.trait, err = h.required(cols.Trait); err != nil {
		return ci, err
	}
	if ci.logTrait, err = h.required(cols.LogTrait); err != nil {
		return ci, err
	}
	ci.celsius = h.index(cols.Celsius)
	ci.b0 = h.index(cols.B0)
	ci.e = h.index(cols.E)
	ci.th = h.index(cols.Th)
	ci.tl = h.index(cols.Tl)
	ci.eh = h.index(cols.Eh)
	ci.el = h.index(cols.El)
	ci.habitat = h.index(cols.Habitat)
	ci.kingdom = h.index(cols.ConKingdom)
	ci.traitName = h.index(cols.StandardisedTraitName)
	ci.obs = h.index(cols.Observations)
	return ci, nil
}

// ReadCSV reads records from a CSV stream with a header row.
// Missing required columns and unparsable required cells are fatal; empty
// optional numeric cells become NaN.
func ReadCSV(r io.Reader, cols Columns) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.ReadCSV: missing header")
	}
	if err != nil {
		return nil, errors.Wrap(err, "dataset.ReadCSV: header")
	}
	h := make(header, len(head))
	for i, name := range head {
		// tolerate a UTF-8 BOM on the first header cell
		name = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
		h[name] = i
	}
	ci, err := resolve(h, cols)
	if err != nil {
		return nil, err
	}

	var records []Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "dataset.ReadCSV: line %d", line)
		}
		rec, err := parseRow(row, ci, cols, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.ReadCSV: no data rows")
	}
	return records, nil
}

// Load reads records from a possibly compressed CSV file.
func Load(path string, cols Columns) ([]Record, error) {
	rc, err := fileio.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	records, err := ReadCSV(rc, cols)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return records, nil
}

func parseRow(row []string, ci columnIndex, cols Columns, line int) (Record, error) {
	var rec Record
	var err error

	rec.GroupID = strings.TrimSpace(cell(row, ci.id))
	if rec.GroupID == "" {
		return rec, errors.NewValidationError(cols.GroupID, "empty identifier", line)
	}
	if rec.Observation.Kelvin, err = requiredFloat(row, ci.kelvin, cols.Kelvin, line); err != nil {
		return rec, err
	}
	if rec.Observation.Trait, err = requiredFloat(row, ci.trait, cols.Trait, line); err != nil {
		return rec, err
	}
	if rec.Observation.LogTrait, err = requiredFloat(row, ci.logTrait, cols.LogTrait, line); err != nil {
		return rec, err
	}
	if rec.Observation.Celsius, err = optionalFloat(row, ci.celsius, cols.Celsius, line); err != nil {
		return rec, err
	}
	if math.IsNaN(rec.Observation.Celsius) {
		rec.Observation.Celsius = rec.Observation.Kelvin - CelsiusOffset
	}

	est := NoEstimates()
	for _, f := range []struct {
		dst  *float64
		idx  int
		name string
	}{
		{&est.B0, ci.b0, cols.B0},
		{&est.E, ci.e, cols.E},
		{&est.Th, ci.th, cols.Th},
		{&est.Tl, ci.tl, cols.Tl},
		{&est.Eh, ci.eh, cols.Eh},
		{&est.El, ci.el, cols.El},
	} {
		if *f.dst, err = optionalFloat(row, f.idx, f.name, line); err != nil {
			return rec, err
		}
	}
	rec.Estimates = est

	rec.Metadata = Metadata{
		Habitat:               cell(row, ci.habitat),
		ConKingdom:            cell(row, ci.kingdom),
		StandardisedTraitName: cell(row, ci.traitName),
		Observations:          cell(row, ci.obs),
	}
	return rec, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func requiredFloat(row []string, i int, name string, line int) (float64, error) {
	raw := strings.TrimSpace(cell(row, i))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.NewValidationError(name, "malformed number on line "+strconv.Itoa(line), raw)
	}
	return v, nil
}

func optionalFloat(row []string, i int, name string, line int) (float64, error) {
	raw := strings.TrimSpace(cell(row, i))
	if _, missing := missingTokens[raw]; missing || i < 0 {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.NewValidationError(name, "malformed number on line "+strconv.Itoa(line), raw)
	}
	return v, nil
}
