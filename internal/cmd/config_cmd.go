package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shellsense/internal/config"
	"shellsense/internal/ipc"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get or set configuration values",
}

// configGetCmd prefers the running daemon so it reports live values; with
// no daemon it falls back to the file on disk.
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.DefaultPaths()

		if client, err := ipc.Dial(paths); err == nil {
			defer client.Close()
			value, err := client.GetConfig(args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		}

		cfg, err := config.Load(paths.ConfigFile())
		if err != nil {
			return err
		}
		value, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.DefaultPaths()

		if client, err := ipc.Dial(paths); err == nil {
			defer client.Close()
			return client.SetConfig(args[0], args[1])
		}

		cfg, err := config.Load(paths.ConfigFile())
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return cfg.Save(paths.ConfigFile())
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
