// Package main is the entry point for the Forgeline CLI
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"forgeline/internal/config"
	"forgeline/internal/state"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	cfg = config.Load()

	rootCmd := &cobra.Command{
		Use:   "forgeline",
		Short: "Plan, gate and execute multi-step missions in sandboxed runners",
		Long: `Forgeline decomposes a goal into a dependency-ordered task plan and
drives it step by step through sandboxed runners. Risky steps are held
behind risk classification and operator approval, every transition is
persisted, and interrupted missions can be inspected and resumed.`,
		Version: "0.1.0",
	}

	rootCmd.AddCommand(
		initCmd(),
		runCmd(),
		planCmd(),
		statusCmd(),
		approvalsCmd(),
		consentCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// findProjectDir locates the forgeline project root by searching upward
func findProjectDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, ".forgeline")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a forgeline project (or any parent up to root)")
		}
		dir = parent
	}
}

// requireProject ensures we're in a forgeline project directory
func requireProject() (string, *state.Store, error) {
	dir, err := findProjectDir()
	if err != nil {
		return "", nil, err
	}

	store, err := state.Open(filepath.Join(dir, ".forgeline", "forgeline.db"))
	if err != nil {
		return "", nil, fmt.Errorf("opening database: %w", err)
	}

	return dir, store, nil
}
