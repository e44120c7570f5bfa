package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var graphCmd = &cobra.Command{
	Use:   "graph <run-id>",
	Short: "Render a run's layer tree as a Mermaid flowchart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		return cli.Graph(context.Background(), cli.GraphOptions{
			GlobalOptions: globalOptions(cmd),
			DBPath:        db,
			RunID:         args[0],
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("db", "", "Layer database path (overrides store.path)")
}
