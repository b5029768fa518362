package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/tpcfit/config"
	"github.com/YuminosukeSato/tpcfit/pkg/errors"
	"github.com/YuminosukeSato/tpcfit/pkg/log"
)

// newRootCommand builds the command tree around a fresh viper instance.
func newRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "tpcfit",
		Short:         "Fit Cubic and Schoolfield thermal response models per group",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "json", "Log encoding: json or console")

	rootCmd.AddCommand(
		newFitCommand(v, &configFile),
		newModelsCommand(),
	)
	return rootCmd
}

// loadConfig binds the flags of cmd and its parents and loads the
// configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper, configFile string) (*config.Config, error) {
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Root().PersistentFlags()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	return cfg, nil
}

// setupLogging installs the zerolog backend writing to cmd's stderr.
func setupLogging(cmd *cobra.Command, cfg *config.Config) log.Logger {
	opts := cfg.LogOptions()
	opts.Writer = cmd.ErrOrStderr()
	return log.Setup(opts)
}
