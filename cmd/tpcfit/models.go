package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tpcfit/core/model"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model kinds with their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, k := range model.AllKinds() {
				fmt.Fprintf(out, "%-6s free=%d  %s\n", k, k.FreeParameters(), strings.Join(k.ParameterNames(), ", "))
			}
			return nil
		},
	}
}
