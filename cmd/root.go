package cmd

import (
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "worker",
		Short: "Worker for Stagehand",
		Long:  `Worker that provides Stagehand agent functionality`,
	}

	rootCmd.AddCommand(RunCmd())
	rootCmd.AddCommand(BootstrapCmd())
	rootCmd.AddCommand(DebugConsoleCmd())

	return rootCmd
}
