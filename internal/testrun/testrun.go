// Package testrun executes a project's test suite through a sandboxed
// runner and parses the outcome for the testing step handler.
package testrun

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"forgeline/internal/runner"
)

// Mode defines how test failures are handled
type Mode string

const (
	// ModeStrict means failures fail the testing step
	ModeStrict Mode = "strict"
	// ModeLenient means failures are logged but the step passes
	ModeLenient Mode = "lenient"
	// ModeDisabled means tests are not run
	ModeDisabled Mode = "disabled"
)

// Config configures test execution
type Config struct {
	Mode    Mode
	Timeout time.Duration
	Command string // custom test command, auto-detected when empty
}

// DefaultConfig returns strict execution with a five minute cap
func DefaultConfig() Config {
	return Config{Mode: ModeStrict, Timeout: 5 * time.Minute}
}

// Outcome is the parsed result of one test run
type Outcome struct {
	Success  bool
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Output   string
	Error    string
	Ran      bool
}

// Executor runs project tests inside the given runner
type Executor struct {
	config Config
	run    runner.Runner
}

// NewExecutor creates a test executor
func NewExecutor(config Config, run runner.Runner) *Executor {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &Executor{config: config, run: run}
}

// Run executes the project's tests in workingDir and parses the result
func (e *Executor) Run(ctx context.Context, workingDir string) Outcome {
	if e.config.Mode == ModeDisabled {
		return Outcome{Success: true}
	}

	command, err := e.testCommand(workingDir)
	if err != nil {
		return Outcome{
			Success: e.config.Mode != ModeStrict,
			Error:   fmt.Sprintf("determining test command: %v", err),
		}
	}

	result := e.run.Execute(ctx, command, runner.Options{
		WorkingDir: workingDir,
		Timeout:    e.config.Timeout,
	})

	output := result.Stdout
	if result.Stderr != "" {
		output += "\n" + result.Stderr
	}

	outcome := Outcome{
		Success:  result.ExitCode == 0,
		Duration: result.Duration,
		Output:   output,
		Ran:      true,
	}
	outcome.Passed, outcome.Failed, outcome.Skipped = parseCounts(output)

	if !outcome.Success {
		outcome.Error = fmt.Sprintf("tests exited with code %d", result.ExitCode)
		log.Printf("[testrun] failed in %s: %d passed, %d failed, %d skipped",
			workingDir, outcome.Passed, outcome.Failed, outcome.Skipped)
		if e.config.Mode == ModeLenient {
			outcome.Success = true
		}
		return outcome
	}

	log.Printf("[testrun] passed in %s: %d passed, %d skipped", workingDir, outcome.Passed, outcome.Skipped)
	return outcome
}

// testCommand picks the test command for the project layout
func (e *Executor) testCommand(workingDir string) (string, error) {
	if e.config.Command != "" {
		return e.config.Command, nil
	}

	hasFile := func(name string) bool {
		_, err := os.Stat(filepath.Join(workingDir, name))
		return err == nil
	}

	switch {
	case hasFile("go.mod"):
		return "go test ./...", nil
	case hasFile("package.json"):
		return "npm test", nil
	case hasFile("Cargo.toml"):
		return "cargo test", nil
	case hasFile("pyproject.toml"), hasFile("setup.py"), hasFile("tests"):
		return "python3 -m pytest", nil
	}
	return "", fmt.Errorf("no recognizable project layout in %s", workingDir)
}

var (
	passedRe  = regexp.MustCompile(`(\d+) passed`)
	failedRe  = regexp.MustCompile(`(\d+) failed`)
	skippedRe = regexp.MustCompile(`(\d+) skipped`)
)

// parseCounts extracts pytest-style counts from test output. When no
// counts are found, PASS/FAIL markers set the minimum of one.
func parseCounts(output string) (passed, failed, skipped int) {
	lower := strings.ToLower(output)
	if m := passedRe.FindStringSubmatch(lower); m != nil {
		passed, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(lower); m != nil {
		failed, _ = strconv.Atoi(m[1])
	}
	if m := skippedRe.FindStringSubmatch(lower); m != nil {
		skipped, _ = strconv.Atoi(m[1])
	}

	if passed == 0 && failed == 0 {
		if strings.Contains(output, "PASS") {
			passed = 1
		}
		if strings.Contains(output, "FAIL") {
			failed = 1
		}
	}
	return passed, failed, skipped
}
