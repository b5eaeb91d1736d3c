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
	historyLimit  int
	historySearch string
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent command history",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.Dial(config.DefaultPaths())
		if err != nil {
			return err
		}
		defer client.Close()

		records, err := client.History(historyLimit, historySearch)
		if err != nil {
			return err
		}

		if historyJSON {
			return json.NewEncoder(os.Stdout).Encode(records)
		}
		for _, r := range records {
			fmt.Printf("%s  [%d]  %s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.ExitCode, r.Command)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum records to show")
	historyCmd.Flags().StringVarP(&historySearch, "search", "s", "", "full-text search query")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "emit JSON")
}
