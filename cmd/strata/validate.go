package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml>",
	Short: "Check a workflow without running it",
	Long: `Expands templates and checks runner names, operations, checkpoint and
model references, and fragment patterns. No layers are written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Validate(context.Background(), cli.ValidateOptions{
			GlobalOptions: globalOptions(cmd),
			WorkflowPath:  args[0],
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
