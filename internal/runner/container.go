package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Container runs commands inside throwaway docker containers with the
// network disabled and memory/cpu caps applied.
type Container struct {
	image       string
	memoryLimit string
	cpuLimit    string

	probeOnce sync.Once
	available bool
}

// NewContainer creates a container runner. Zero values fall back to a
// slim python image with 512m memory and one cpu.
func NewContainer(image, memoryLimit, cpuLimit string) *Container {
	if image == "" {
		image = "python:3.12-slim"
	}
	if memoryLimit == "" {
		memoryLimit = "512m"
	}
	if cpuLimit == "" {
		cpuLimit = "1.0"
	}
	return &Container{image: image, memoryLimit: memoryLimit, cpuLimit: cpuLimit}
}

func (c *Container) Name() string { return "container" }

// IsAvailable probes the docker daemon once and caches the answer
func (c *Container) IsAvailable() bool {
	c.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.available = exec.CommandContext(ctx, "docker", "version").Run() == nil
	})
	return c.available
}

// Execute runs the command in a fresh container. The working directory
// is bind-mounted at /app when set.
func (c *Container) Execute(ctx context.Context, command string, opts Options) Result {
	if !c.IsAvailable() {
		return Result{
			ExitCode: UnavailableExitCode,
			Stderr:   "docker is not available",
		}
	}

	args := []string{
		"run", "--rm",
		"--network=none",
		fmt.Sprintf("--memory=%s", c.memoryLimit),
		fmt.Sprintf("--cpus=%s", c.cpuLimit),
	}
	if opts.WorkingDir != "" {
		args = append(args, "-v", fmt.Sprintf("%s:/app", opts.WorkingDir), "-w", "/app")
	}
	for _, pair := range envPairs(opts.Env) {
		args = append(args, "-e", pair)
	}
	args = append(args, c.image, "sh", "-c", command)

	timeout := effectiveTimeout(opts.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "docker", args...)
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
			result.Stderr = fmt.Sprintf("starting docker: %v", err)
		}
	}
	return result
}

// RunPython executes a python script inside the container
func (c *Container) RunPython(ctx context.Context, script string, timeout time.Duration) Result {
	command := fmt.Sprintf("python -c '%s'", strings.ReplaceAll(script, "'", `'"'"'`))
	return c.Execute(ctx, command, Options{Timeout: timeout})
}
