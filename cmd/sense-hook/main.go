// Package main is the minimal binary shell hooks invoke after every
// command. It parses its arguments without cobra to keep startup cost at
// the absolute minimum, fires one event at the daemon, and always exits
// zero so a missing daemon never breaks the prompt.
package main

import (
	"os"
	"strconv"

	"shellsense/internal/config"
	"shellsense/internal/ipc"
)

func main() {
	// Usage: sense-hook <command> [exit-code] [duration-seconds] [cwd]
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "" {
		return
	}
	command := args[0]

	exitCode := 0
	if len(args) > 1 {
		exitCode, _ = strconv.Atoi(args[1])
	}

	duration := 0.0
	if len(args) > 2 {
		duration, _ = strconv.ParseFloat(args[2], 64)
	}

	cwd := ""
	if len(args) > 3 {
		cwd = args[3]
	} else {
		cwd, _ = os.Getwd()
	}

	sender := ipc.NewHookSender(config.DefaultPaths().SocketFile())
	sender.Send(command, cwd, exitCode, duration)
}
