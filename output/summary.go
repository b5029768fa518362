package output

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/tpcfit/fit"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/fileio"
)

// Summary is the YAML run summary.
type Summary struct {
	RunID       string         `yaml:"run_id"`
	Fingerprint string         `yaml:"fingerprint,omitempty"`
	StartedAt   time.Time      `yaml:"started_at"`
	FinishedAt  time.Time      `yaml:"finished_at"`
	DurationMs  int64          `yaml:"duration_ms"`
	Workers     int            `yaml:"workers"`
	Groups      int            `yaml:"groups"`
	Models      []ModelSummary `yaml:"models"`
	Failures    []FailureEntry `yaml:"failures,omitempty"`
}

// ModelSummary counts the outcomes of one kind.
type ModelSummary struct {
	Model     string `yaml:"model"`
	Converged int    `yaml:"converged"`
	Sentinels int    `yaml:"sentinels"`
	// BestAIC counts the groups for which this kind has the lowest
	// converged AIC among the fitted kinds.
	BestAIC int `yaml:"best_aic"`
}

// FailureEntry describes one sentinel row.
type FailureEntry struct {
	Group  string `yaml:"group"`
	Model  string `yaml:"model"`
	Kind   string `yaml:"kind"`
	Reason string `yaml:"reason"`
}

// Summarize builds the summary of report.
func Summarize(report *fit.Report) Summary {
	s := Summary{
		RunID:       report.RunID,
		Fingerprint: report.Fingerprint,
		StartedAt:   report.StartedAt.UTC(),
		FinishedAt:  report.FinishedAt.UTC(),
		DurationMs:  report.Duration().Milliseconds(),
		Workers:     report.Workers,
		Groups:      report.Groups,
	}

	best := bestKinds(report)
	for _, t := range report.Tables() {
		m := ModelSummary{
			Model:     t.Kind().String(),
			Converged: t.Converged(),
			Sentinels: t.Len() - t.Converged(),
		}
		for _, k := range best {
			if k == t.Kind().String() {
				m.BestAIC++
			}
		}
		s.Models = append(s.Models, m)
	}

	for _, f := range report.Failures() {
		s.Failures = append(s.Failures, FailureEntry{
			Group:  f.GroupID,
			Model:  f.Model.String(),
			Kind:   string(f.Kind),
			Reason: f.Reason,
		})
	}
	return s
}

// bestKinds maps each group to the kind with the lowest converged AIC.
// Ties go to the kind reported first.
func bestKinds(report *fit.Report) map[string]string {
	best := make(map[string]string)
	aic := make(map[string]float64)
	for _, r := range report.Combined() {
		if !r.Converged() {
			continue
		}
		if cur, ok := aic[r.GroupID()]; !ok || r.AIC() < cur {
			aic[r.GroupID()] = r.AIC()
			best[r.GroupID()] = r.Kind().String()
		}
	}
	return best
}

// EncodeSummary writes the YAML summary of report to out.
func EncodeSummary(out io.Writer, report *fit.Report) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(Summarize(report)); err != nil {
		return errors.Wrap(err, "encode summary")
	}
	return enc.Close()
}

// WriteSummary writes the YAML summary of report to path, compressed by
// extension.
func WriteSummary(path string, report *fit.Report) (err error) {
	if report == nil {
		return errors.NewValueError("output.WriteSummary", "nil report")
	}
	f, err := fileio.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return EncodeSummary(f, report)
}

// ReadSummary decodes a summary written by WriteSummary.
func ReadSummary(path string) (Summary, error) {
	var s Summary
	f, err := fileio.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&s); err != nil {
		return s, errors.Wrapf(err, "decode summary %s", path)
	}
	return s, nil
}
