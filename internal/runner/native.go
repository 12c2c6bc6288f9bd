package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Native runs commands directly on the host through the shell
type Native struct {
	workingDir string
}

// NewNative creates a native runner rooted at workingDir. An empty
// workingDir means the process working directory.
func NewNative(workingDir string) *Native {
	return &Native{workingDir: workingDir}
}

func (n *Native) Name() string { return "native" }

// IsAvailable reports whether a shell can be found on the host
func (n *Native) IsAvailable() bool {
	_, err := exec.LookPath("sh")
	return err == nil
}

// Execute runs the command through sh -c with a wall-clock timeout.
// The process is killed when the deadline passes and the result
// carries the -1 sentinel instead of an error.
func (n *Native) Execute(ctx context.Context, command string, opts Options) Result {
	timeout := effectiveTimeout(opts.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	} else if n.workingDir != "" {
		cmd.Dir = n.workingDir
	}
	cmd.Env = append(os.Environ(), envPairs(opts.Env)...)

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
			result.Stderr = fmt.Sprintf("starting command: %v", err)
		}
	}
	return result
}

// RunPython writes the script to a temp file inside the working
// directory and executes it with the host python3.
func (n *Native) RunPython(ctx context.Context, script string, timeout time.Duration) Result {
	dir := n.workingDir
	if dir == "" {
		dir = os.TempDir()
	}
	scriptPath := filepath.Join(dir, fmt.Sprintf("run_%d.py", time.Now().UnixNano()))
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return Result{
			ExitCode: UnavailableExitCode,
			Stderr:   fmt.Sprintf("writing script: %v", err),
		}
	}
	defer os.Remove(scriptPath)

	return n.Execute(ctx, fmt.Sprintf("python3 %q", scriptPath), Options{
		WorkingDir: dir,
		Timeout:    timeout,
	})
}
