package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata records molecular models as immutable layers",
	Long: `Strata runs workflows that edit molecular structures. Every edit is
stored as a layer on top of its parent, so branches share their history and
any layer can be materialized again later.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default strata.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}

func globalOptions(cmd *cobra.Command) cli.GlobalOptions {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	logFormat, _ := cmd.Flags().GetString("log-format")
	return cli.GlobalOptions{ConfigPath: configPath, Debug: debug, LogFormat: logFormat}
}
