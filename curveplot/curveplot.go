// Package curveplot renders one PNG per group: the observed log trait
// against temperature with every converged Schoolfield curve overlaid.
package curveplot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/tpcfit/core/model"
	"github.com/YuminosukeSato/tpcfit/core/parallel"
	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/fit"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
)

const curvePoints = 200

// Plotter writes group plots into a directory.
type Plotter struct {
	dir     string
	width   vg.Length
	height  vg.Length
	workers int
}

// New creates a plotter writing 6x4 inch images into dir.
func New(dir string, workers int) *Plotter {
	return &Plotter{dir: dir, width: 6 * vg.Inch, height: 4 * vg.Inch, workers: workers}
}

// Path returns the image path of a group.
func (p *Plotter) Path(groupID string) string {
	return filepath.Join(p.dir, FileName(groupID))
}

// FileName maps a group identifier to a safe file name.
func FileName(groupID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, groupID)
	if clean == "" || strings.Trim(clean, ".") == "" {
		clean = "group"
	}
	return clean + ".png"
}

// PlotReport plots every group with its results from report.
func (p *Plotter) PlotReport(ctx context.Context, groups []*dataset.Group, report *fit.Report) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create plot directory %s", p.dir)
	}
	byGroup := make(map[string][]fit.Result)
	for _, r := range report.Combined() {
		byGroup[r.GroupID()] = append(byGroup[r.GroupID()], r)
	}
	return parallel.ForEach(ctx, len(groups), p.workers, func(ctx context.Context, i int) error {
		g := groups[i]
		return p.Plot(g, byGroup[g.ID])
	})
}

// Plot writes the image of g. Sentinel and Cubic results are not drawn.
func (p *Plotter) Plot(g *dataset.Group, results []fit.Result) error {
	if g == nil {
		return errors.NewValueError("curveplot.Plot", "nil group")
	}
	pl := plot.New()
	pl.Title.Text = g.ID
	pl.X.Label.Text = "Temperature (K)"
	pl.Y.Label.Text = "log trait"
	pl.Legend.Top = true

	obs := observed(g)
	if len(obs) > 0 {
		scatter, err := plotter.NewScatter(obs)
		if err != nil {
			return errors.Wrapf(err, "plot observations of %s", g.ID)
		}
		pl.Add(scatter)
		pl.Legend.Add("observed", scatter)
	}

	lo, hi, ok := span(obs)
	for i, r := range results {
		if !ok || !r.Converged() || !r.Kind().IsSchoolfield() {
			continue
		}
		pts := curve(r.Kind(), r.Values(), lo, hi)
		if len(pts) < 2 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "plot %s curve of %s", r.Kind(), g.ID)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		pl.Add(line)
		pl.Legend.Add(fmt.Sprintf("%s (AIC %.1f)", r.Kind(), r.AIC()), line)
	}

	path := p.Path(g.ID)
	if err := pl.Save(p.width, p.height, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}

func observed(g *dataset.Group) plotter.XYs {
	var pts plotter.XYs
	for _, o := range g.Observations {
		if errors.IsFinite(o.Kelvin) && errors.IsFinite(o.LogTrait) {
			pts = append(pts, plotter.XY{X: o.Kelvin, Y: o.LogTrait})
		}
	}
	return pts
}

func span(pts plotter.XYs) (lo, hi float64, ok bool) {
	if len(pts) == 0 {
		return 0, 0, false
	}
	lo, hi = pts[0].X, pts[0].X
	for _, pt := range pts[1:] {
		lo = min(lo, pt.X)
		hi = max(hi, pt.X)
	}
	return lo, hi, hi > lo
}

// curve samples the fitted log rate over [lo, hi], dropping undefined
// points.
func curve(kind model.Kind, params []float64, lo, hi float64) plotter.XYs {
	pts := make(plotter.XYs, 0, curvePoints)
	step := (hi - lo) / float64(curvePoints-1)
	for i := 0; i < curvePoints; i++ {
		x := lo + float64(i)*step
		y := model.LogRate(kind, params, x)
		if errors.IsFinite(y) {
			pts = append(pts, plotter.XY{X: x, Y: y})
		}
	}
	return pts
}
