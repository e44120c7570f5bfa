package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Run a workflow",
	Long: `Runs a workflow file. Base structures, templates, fragments and tools are
resolved relative to the workflow's directory. Run state is persisted after
every step, so a failed run can be continued with --resume.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run-id")
		resume, _ := cmd.Flags().GetBool("resume")
		db, _ := cmd.Flags().GetString("db")
		cacheSize, _ := cmd.Flags().GetInt("cache-size")
		jsonMode, _ := cmd.Flags().GetBool("json")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		return cli.Execute(ctx, cli.RunOptions{
			GlobalOptions: globalOptions(cmd),
			WorkflowPath:  args[0],
			RunID:         runID,
			Resume:        resume,
			DBPath:        db,
			CacheSize:     cacheSize,
			JSON:          jsonMode,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("run-id", "", "Run identifier (generated when empty)")
	runCmd.Flags().Bool("resume", false, "Continue a persisted run from its next step")
	runCmd.Flags().String("db", "", "Layer database path (overrides store.path)")
	runCmd.Flags().Int("cache-size", 0, "Materialization cache capacity (overrides cache.size)")
	runCmd.Flags().Bool("json", false, "Print the final run state as JSON")
}
