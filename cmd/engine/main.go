// ============================================================================
// Workflow Engine Host - Main Entry Point
// ============================================================================
//
// File: cmd/engine/main.go
// Purpose: Application entry point for the engine host process (G)
//
// Usage:
//   ./workflow-engine --config configs/default.yaml
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/somauser/workflow-engine/internal/cli"
)

var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
