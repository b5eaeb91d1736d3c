package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shellsense/internal/config"
	"shellsense/internal/ipc"
)

var (
	suggestCWD  string
	suggestJSON bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <partial>",
	Short: "Suggest completions for a partial command line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.Dial(config.DefaultPaths())
		if err != nil {
			return err
		}
		defer client.Close()

		cwd := suggestCWD
		if cwd == "" {
			cwd, _ = os.Getwd()
		}

		candidates, err := client.Suggest(args[0], cwd)
		if err != nil {
			return err
		}

		if suggestJSON {
			return json.NewEncoder(os.Stdout).Encode(candidates)
		}
		for _, c := range candidates {
			fmt.Printf("%.2f  %-8s  %s\n", c.Confidence, c.SourceTier, c.Command)
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().StringVar(&suggestCWD, "cwd", "", "working directory context (default: current directory)")
	suggestCmd.Flags().BoolVar(&suggestJSON, "json", false, "emit JSON")
}
