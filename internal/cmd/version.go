package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shellsense/internal/daemon"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sense %s\n", daemon.Version)
	},
}
