package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shellsense/internal/config"
	"shellsense/internal/ipc"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history analytics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.Dial(config.DefaultPaths())
		if err != nil {
			return err
		}
		defer client.Close()

		analytics, err := client.Analytics()
		if err != nil {
			return err
		}

		if statsJSON {
			return json.NewEncoder(os.Stdout).Encode(analytics)
		}
		fmt.Printf("total commands:    %d\n", analytics.TotalCommands)
		fmt.Printf("distinct commands: %d\n", analytics.DistinctCommands)
		fmt.Printf("success rate:      %.1f%%\n", analytics.SuccessRate*100)
		if len(analytics.TopCommands) > 0 {
			fmt.Println("top commands:")
			for _, tc := range analytics.TopCommands {
				fmt.Printf("  %6d  %s\n", tc.Count, tc.Command)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit JSON")
}
