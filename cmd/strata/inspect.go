package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var inspectCmd = &cobra.Command{
	Use:       "inspect layer|chain|children|structure <id>",
	Short:     "Print a layer, its ancestry, its children or its structure",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"layer", "chain", "children", "structure"},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		return cli.Inspect(context.Background(), cli.InspectOptions{
			GlobalOptions: globalOptions(cmd),
			DBPath:        db,
			What:          args[0],
			ID:            args[1],
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("db", "", "Layer database path (overrides store.path)")
}
