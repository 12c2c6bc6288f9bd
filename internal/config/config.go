// Package config handles Forgeline configuration
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds Forgeline configuration
type Config struct {
	// Database path
	DatabasePath string

	// Workspace settings
	WorkspaceDir string
	ConsentPath  string

	// Execution settings
	RunnerType  string // "native", "container", or "subsystem"
	StepTimeout time.Duration
	Parallelism int

	// Container runner settings
	ContainerImage  string
	ContainerMemory string
	ContainerCPUs   string

	// Approval settings
	AutoApproveLowRisk bool

	// Admission quotas (0 = unlimited)
	MaxCPU         int
	MaxMemoryMB    int
	MaxRunnerSlots int

	// Refinement settings
	RefineMaxSteps int

	// Verbose mode for debugging
	Verbose bool
}

// Load loads configuration from environment and defaults
func Load() *Config {
	cfg := &Config{
		DatabasePath:       defaultDatabasePath(),
		WorkspaceDir:       ".forgeline/workspaces",
		ConsentPath:        ".forgeline/consent.json",
		RunnerType:         "native",
		StepTimeout:        5 * time.Minute,
		Parallelism:        2,
		ContainerImage:     "python:3.12-slim",
		ContainerMemory:    "512m",
		ContainerCPUs:      "1.0",
		AutoApproveLowRisk: true,
		MaxRunnerSlots:     4,
		RefineMaxSteps:     3,
	}

	// Environment overrides
	if v := os.Getenv("FORGELINE_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("FORGELINE_WORKSPACE_DIR"); v != "" {
		cfg.WorkspaceDir = v
	}
	if v := os.Getenv("FORGELINE_CONSENT_PATH"); v != "" {
		cfg.ConsentPath = v
	}
	if v := os.Getenv("FORGELINE_RUNNER"); v != "" {
		cfg.RunnerType = v
	}
	if v := os.Getenv("FORGELINE_STEP_TIMEOUT"); v != "" {
		cfg.StepTimeout = parseDurationOrDefault(v, 5*time.Minute)
	}
	if v := os.Getenv("FORGELINE_PARALLELISM"); v != "" {
		cfg.Parallelism = parseIntOrDefault(v, 2)
	}
	if v := os.Getenv("FORGELINE_CONTAINER_IMAGE"); v != "" {
		cfg.ContainerImage = v
	}
	if v := os.Getenv("FORGELINE_CONTAINER_MEMORY"); v != "" {
		cfg.ContainerMemory = v
	}
	if v := os.Getenv("FORGELINE_CONTAINER_CPUS"); v != "" {
		cfg.ContainerCPUs = v
	}
	if v := os.Getenv("FORGELINE_AUTO_APPROVE_LOW_RISK"); v != "" {
		cfg.AutoApproveLowRisk = v == "true" || v == "1"
	}
	if v := os.Getenv("FORGELINE_MAX_CPU"); v != "" {
		cfg.MaxCPU = parseIntOrDefault(v, 0)
	}
	if v := os.Getenv("FORGELINE_MAX_MEMORY_MB"); v != "" {
		cfg.MaxMemoryMB = parseIntOrDefault(v, 0)
	}
	if v := os.Getenv("FORGELINE_MAX_RUNNER_SLOTS"); v != "" {
		cfg.MaxRunnerSlots = parseIntOrDefault(v, 4)
	}
	if v := os.Getenv("FORGELINE_REFINE_MAX_STEPS"); v != "" {
		cfg.RefineMaxSteps = parseIntOrDefault(v, 3)
	}
	if v := os.Getenv("FORGELINE_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}

	return cfg
}

// defaultDatabasePath returns SQLite in the project config directory
func defaultDatabasePath() string {
	return filepath.Join(".forgeline", "forgeline.db")
}

func parseIntOrDefault(value string, fallback int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func parseDurationOrDefault(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
