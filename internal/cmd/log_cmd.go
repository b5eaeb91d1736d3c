package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"shellsense/internal/config"
	"shellsense/internal/ipc"
)

var (
	logExitCode int
	logDuration float64
	logCWD      string
)

// logCmd is what the shell hook invokes after each command. It must never
// fail loudly or slowly, so it uses the fire-and-forget sender and always
// exits zero.
var logCmd = &cobra.Command{
	Use:   "log <command>",
	Short: "Record an executed command (for shell hooks)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cwd := logCWD
		if cwd == "" {
			cwd, _ = os.Getwd()
		}

		sender := ipc.NewHookSender(config.DefaultPaths().SocketFile())
		sender.Send(args[0], cwd, logExitCode, logDuration)
	},
}

func init() {
	logCmd.Flags().IntVar(&logExitCode, "exit-code", 0, "command exit code")
	logCmd.Flags().Float64Var(&logDuration, "duration", 0, "command duration in seconds")
	logCmd.Flags().StringVar(&logCWD, "cwd", "", "working directory (default: current directory)")
}
