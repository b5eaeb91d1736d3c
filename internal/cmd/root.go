// Package cmd implements the sense CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sense",
	Short: "history-aware command suggestions for any shell",
	Long: `sense - history-aware command suggestions for any shell
  - logs executed commands through a background daemon
  - suggests completions from exact, fuzzy and semantic history matches`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(versionCmd)
}
