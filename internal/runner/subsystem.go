package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Subsystem runs commands inside a Linux subsystem hosted on Windows.
// Host paths are translated to their subsystem mount points before
// use.
type Subsystem struct {
	distro string

	probeOnce sync.Once
	available bool
}

// NewSubsystem creates a subsystem runner targeting the given distro
func NewSubsystem(distro string) *Subsystem {
	if distro == "" {
		distro = "Ubuntu"
	}
	return &Subsystem{distro: distro}
}

func (s *Subsystem) Name() string { return "subsystem" }

// IsAvailable reports whether the subsystem can be reached. Always
// false off Windows.
func (s *Subsystem) IsAvailable() bool {
	s.probeOnce.Do(func() {
		if runtime.GOOS != "windows" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.available = exec.CommandContext(ctx, "wsl", "--list", "--quiet").Run() == nil
	})
	return s.available
}

// Execute runs the command inside the subsystem via bash -c
func (s *Subsystem) Execute(ctx context.Context, command string, opts Options) Result {
	if !s.IsAvailable() {
		return Result{
			ExitCode: UnavailableExitCode,
			Stderr:   "subsystem is not available",
		}
	}

	full := command
	if opts.WorkingDir != "" {
		full = fmt.Sprintf("cd %s && %s", TranslatePath(opts.WorkingDir), command)
	}
	if pairs := envPairs(opts.Env); len(pairs) > 0 {
		full = strings.Join(pairs, " ") + " " + full
	}

	timeout := effectiveTimeout(opts.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "wsl", "-d", s.distro, "bash", "-c", full)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			ExitCode: UnavailableExitCode,
			Stderr:   fmt.Sprintf("execution timed out after %s", timeout),
			Duration: duration,
		}
	}

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = UnavailableExitCode
			result.Stderr = fmt.Sprintf("starting subsystem shell: %v", err)
		}
	}
	return result
}

// RunPython executes a python script inside the subsystem
func (s *Subsystem) RunPython(ctx context.Context, script string, timeout time.Duration) Result {
	command := fmt.Sprintf("python3 -c '%s'", strings.ReplaceAll(script, "'", `'"'"'`))
	return s.Execute(ctx, command, Options{Timeout: timeout})
}

// TranslatePath converts a Windows host path like C:\work\app to its
// subsystem mount /mnt/c/work/app. Paths without a drive letter only
// get their separators normalized.
func TranslatePath(hostPath string) string {
	if len(hostPath) >= 2 && hostPath[1] == ':' {
		drive := strings.ToLower(hostPath[:1])
		rest := strings.ReplaceAll(hostPath[2:], `\`, "/")
		return "/mnt/" + drive + rest
	}
	return strings.ReplaceAll(hostPath, `\`, "/")
}
