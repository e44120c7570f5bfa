package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP inspection server",
	Long: `Serves layers, materialized structures, persisted runs and Prometheus
metrics over HTTP until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		db, _ := cmd.Flags().GetString("db")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		return cli.Serve(ctx, cli.ServeOptions{
			GlobalOptions: globalOptions(cmd),
			Addr:          addr,
			DBPath:        db,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	serveCmd.Flags().String("db", "", "Layer database path (overrides store.path)")
}
