package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start a Model Context Protocol server",
	Long: `Exposes run_workflow, get_run, get_layer, get_chain and materialize as MCP
tools. Serves on stdio unless --sse is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		db, _ := cmd.Flags().GetString("db")
		sse, _ := cmd.Flags().GetString("sse")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		return cli.ServeMCP(ctx, cli.MCPOptions{
			GlobalOptions: globalOptions(cmd),
			Dir:           dir,
			DBPath:        db,
			SSEAddr:       sse,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("dir", ".", "Workspace directory holding workflows")
	mcpCmd.Flags().String("db", "", "Layer database path (overrides store.path)")
	mcpCmd.Flags().String("sse", "", "Serve over SSE on this address instead of stdio")
}
