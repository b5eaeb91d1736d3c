// Package main runs the shellsense daemon in the foreground. It exists so
// service managers can start the daemon without going through the CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"shellsense/internal/cmd"
	"shellsense/internal/daemon"
)

func main() {
	if err := cmd.RunDaemon(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			os.Exit(daemon.ExitCodeAlreadyRunning)
		}
		os.Exit(1)
	}
}
