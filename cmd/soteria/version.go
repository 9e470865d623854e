package main

import (
	"github.com/spf13/cobra"

	"github.com/soteriadm/soteria/server/version"
)

func createVersionCmd() *cobra.Command {
	var full bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if full {
				version.PrintFull()
				return
			}
			version.Print()
		},
	}
	versionCmd.PersistentFlags().BoolVar(&full, "full", false, "Print full version information")
	return versionCmd
}
