// Package main is the entry point for the sense CLI.
package main

import (
	"os"

	"shellsense/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
