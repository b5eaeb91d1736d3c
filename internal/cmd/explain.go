package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shellsense/internal/config"
	"shellsense/internal/ipc"
)

var explainCmd = &cobra.Command{
	Use:   "explain <command>...",
	Short: "Explain what a command does",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.Dial(config.DefaultPaths())
		if err != nil {
			return err
		}
		defer client.Close()

		explanation, err := client.Explain(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(explanation)
		return nil
	},
}
