// Package output persists fit reports as CSV tables, a SQLite database and
// a YAML run summary.
package output

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/fit"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/fileio"
)

// CombinedFileStem names the single file written in combined mode.
const CombinedFileStem = "results"

// CSVOption configures a CSVWriter.
type CSVOption func(*CSVWriter)

// WithCombined writes every kind into one file instead of one per kind.
func WithCombined(combined bool) CSVOption {
	return func(w *CSVWriter) { w.combined = combined }
}

// WithCompression compresses every file with codec. The codec's extension
// is appended to the file name.
func WithCompression(codec fileio.Codec) CSVOption {
	return func(w *CSVWriter) { w.codec = codec }
}

// CSVWriter writes result tables under a directory.
type CSVWriter struct {
	dir      string
	combined bool
	codec    fileio.Codec
}

// NewCSVWriter creates a writer for dir. Files are per kind and
// uncompressed unless configured otherwise.
func NewCSVWriter(dir string, opts ...CSVOption) *CSVWriter {
	w := &CSVWriter{dir: dir, codec: fileio.CodecNone}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the file a table of kind is written to. In combined mode
// every kind shares one path.
func (w *CSVWriter) Path(kind model.Kind) string {
	stem := kind.FileStem()
	if w.combined {
		stem = CombinedFileStem
	}
	return filepath.Join(w.dir, stem+".csv"+extension(w.codec))
}

// Write writes report and returns the paths written in reporting order.
func (w *CSVWriter) Write(report *fit.Report) ([]string, error) {
	if report == nil {
		return nil, errors.NewValueError("output.CSVWriter", "nil report")
	}
	if w.combined {
		path := w.Path(model.Cubic)
		err := w.writeFile(path, func(out io.Writer) error {
			return WriteCombined(out, report)
		})
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	var paths []string
	for _, t := range report.Tables() {
		path := w.Path(t.Kind())
		if err := w.writeFile(path, func(out io.Writer) error {
			return WriteTable(out, t)
		}); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (w *CSVWriter) writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := fileio.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	if err := write(f); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// WriteTable writes t with its header. Sentinel rows carry zero parameters
// and the sentinel AIC.
func WriteTable(out io.Writer, t *fit.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}
	for _, r := range t.Rows() {
		record := []string{r.GroupID(), r.Kind().String()}
		for _, v := range r.Values() {
			record = append(record, formatFloat(v))
		}
		record = append(record, formatFloat(r.AIC()))
		record = append(record, metadataCells(r)...)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CombinedColumns returns the header of the combined file: the union of
// every kind's parameters in reporting order.
func CombinedColumns() []string {
	cols := []string{"GroupID", "Model"}
	cols = append(cols, combinedParameters()...)
	cols = append(cols, "AIC")
	return append(cols, fit.MetadataColumns...)
}

func combinedParameters() []string {
	var names []string
	seen := make(map[string]bool)
	for _, k := range model.AllKinds() {
		for _, name := range k.ParameterNames() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// WriteCombined writes every row of report ordered by group then kind.
// Parameters a kind does not have are left empty.
func WriteCombined(out io.Writer, report *fit.Report) error {
	params := combinedParameters()
	cw := csv.NewWriter(out)
	if err := cw.Write(CombinedColumns()); err != nil {
		return err
	}
	for _, r := range report.Combined() {
		record := []string{r.GroupID(), r.Kind().String()}
		for _, name := range params {
			if v, ok := r.Parameter(name); ok {
				record = append(record, formatFloat(v))
			} else {
				record = append(record, "")
			}
		}
		record = append(record, formatFloat(r.AIC()))
		record = append(record, metadataCells(r)...)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func metadataCells(r fit.Result) []string {
	md := r.Metadata()
	return []string{md.Habitat, md.ConKingdom, md.StandardisedTraitName, md.Observations}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func extension(codec fileio.Codec) string {
	switch codec {
	case fileio.CodecGzip:
		return ".gz"
	case fileio.CodecZstd:
		return ".zst"
	case fileio.CodecLZ4:
		return ".lz4"
	}
	return ""
}
