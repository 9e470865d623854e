package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/soteriadm/soteria/server/config"
)

func createConfigDumpCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "config_dump",
		Short: "Dump the effective configuration as YAML",
		Run: func(cmd *cobra.Command, args []string) {
			conf := configManager.LoadConfig()
			// never echo credentials
			conf.Mysql.Password = "********"
			conf.Fleet.Token = "********"

			out, err := yaml.Marshal(conf)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error marshaling config:", err)
				os.Exit(1)
			}
			fmt.Print(string(out))
		},
	}
}
