package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/soteriadm/soteria/server/config"
)

func main() {
	// a .env file is optional; environment variables win either way
	_ = godotenv.Load()

	rootCmd := createRootCmd()
	configManager := config.NewManager(rootCmd)

	rootCmd.AddCommand(createServeCmd(configManager))
	rootCmd.AddCommand(createConfigDumpCmd(configManager))
	rootCmd.AddCommand(createVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "soteria",
		Short: "soteria syncs endpoint compliance data and serves posture aggregates",
		Long: `
soteria pulls teams, hosts, policies and per-host policy results from an
upstream Fleet server into MySQL, joins them against the CIS to D3FEND and
ATT&CK mapping, and maintains the compliance snapshots behind the posture
reports.`,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")
	return rootCmd
}
