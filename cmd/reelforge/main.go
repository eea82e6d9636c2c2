// Package main is the entry point of the reelforge CLI. It uses cobra
// for command dispatch, matching the teacher's CLI structure.
package main

import (
	"fmt"
	"os"

	"github.com/reelforge/scheduler/cmd/reelforge/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
