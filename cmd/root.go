package cmd

import (
	"github.com/spf13/cobra"
	"clipstream/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(migrate(config))
	return rootCmd
}
