package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shellsense/internal/config"
	"shellsense/internal/ipc"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old history records",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.Dial(config.DefaultPaths())
		if err != nil {
			return err
		}
		defer client.Close()

		var before time.Time
		if pruneDays > 0 {
			before = time.Now().AddDate(0, 0, -pruneDays)
		}

		pruned, err := client.Prune(before)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d records\n", pruned)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "prune records older than this many days (default: configured retention)")
}
