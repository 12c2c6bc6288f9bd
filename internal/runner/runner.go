// Package runner executes commands for mission steps. Every runner
// reports ordinary command failure as data in the Result, never as a
// Go error: exit code -1 with a human-readable Stderr marks timeouts,
// missing engines, and unavailable backends.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// UnavailableExitCode marks results where no process ran at all
const UnavailableExitCode = -1

// Result is the uniform outcome shape shared by all runners
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Failed reports whether the execution did not exit cleanly
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Options carries the per-execution knobs common to all runners
type Options struct {
	WorkingDir string
	Env        map[string]string
	Timeout    time.Duration
}

// Runner executes a shell command and returns its outcome as data
type Runner interface {
	Name() string
	IsAvailable() bool
	Execute(ctx context.Context, command string, opts Options) Result
	RunPython(ctx context.Context, script string, timeout time.Duration) Result
}

const defaultTimeout = 30 * time.Second

func effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultTimeout
	}
	return timeout
}

// envPairs flattens an env map into sorted KEY=VALUE strings
func envPairs(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for key, value := range env {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(pairs)
	return pairs
}
