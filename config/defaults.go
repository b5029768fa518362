package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/YuminosukeSato/tpcfit/dataset"
	"github.com/YuminosukeSato/tpcfit/optimize"
)

// setDefaults registers every key so environment variables are picked up
// on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("input", "")

	cols := dataset.DefaultColumns()
	v.SetDefault("columns.group_id", cols.GroupID)
	v.SetDefault("columns.kelvin", cols.Kelvin)
	v.SetDefault("columns.celsius", cols.Celsius)
	v.SetDefault("columns.trait", cols.Trait)
	v.SetDefault("columns.log_trait", cols.LogTrait)
	v.SetDefault("columns.b0", cols.B0)
	v.SetDefault("columns.e", cols.E)
	v.SetDefault("columns.th", cols.Th)
	v.SetDefault("columns.tl", cols.Tl)
	v.SetDefault("columns.eh", cols.Eh)
	v.SetDefault("columns.el", cols.El)
	v.SetDefault("columns.habitat", cols.Habitat)
	v.SetDefault("columns.con_kingdom", cols.ConKingdom)
	v.SetDefault("columns.trait_name", cols.StandardisedTraitName)
	v.SetDefault("columns.observations", cols.Observations)

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.combined", false)
	v.SetDefault("output.compression", "none")
	v.SetDefault("output.sqlite", "")
	v.SetDefault("output.summary", "")
	v.SetDefault("output.metrics_file", "")
	v.SetDefault("output.plots_dir", "")

	solver := optimize.DefaultSettings()
	v.SetDefault("fit.models", []string{})
	v.SetDefault("fit.workers", 0)
	v.SetDefault("fit.timeout", time.Duration(0))
	v.SetDefault("fit.init_mode", "precomputed")
	v.SetDefault("fit.fix_e", false)
	v.SetDefault("fit.default_e", 0.65)
	v.SetDefault("fit.max_evaluations", solver.MaxEvaluations)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
