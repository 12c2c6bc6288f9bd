package runner

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNativeExecute(t *testing.T) {
	n := NewNative(t.TempDir())
	if !n.IsAvailable() {
		t.Skip("no shell on host")
	}

	result := n.Execute(context.Background(), "echo hello", Options{Timeout: 5 * time.Second})
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, stderr = %q", result.ExitCode, result.Stderr)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Fatalf("stdout = %q", result.Stdout)
	}
	if result.Duration <= 0 {
		t.Fatal("duration not recorded")
	}
}

func TestNativeFailureIsData(t *testing.T) {
	n := NewNative(t.TempDir())
	if !n.IsAvailable() {
		t.Skip("no shell on host")
	}

	result := n.Execute(context.Background(), "exit 3", Options{Timeout: 5 * time.Second})
	if result.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestNativeTimeout(t *testing.T) {
	n := NewNative(t.TempDir())
	if !n.IsAvailable() {
		t.Skip("no shell on host")
	}

	result := n.Execute(context.Background(), "sleep 5", Options{Timeout: 100 * time.Millisecond})
	if result.ExitCode != UnavailableExitCode {
		t.Fatalf("exit code = %d, want %d", result.ExitCode, UnavailableExitCode)
	}
	if result.Stderr == "" {
		t.Fatal("timeout result has empty stderr")
	}
}

func TestNativeMissingBinary(t *testing.T) {
	n := NewNative(t.TempDir())
	if !n.IsAvailable() {
		t.Skip("no shell on host")
	}

	result := n.Execute(context.Background(), "definitely-not-a-binary-xyz", Options{Timeout: 5 * time.Second})
	if result.ExitCode == 0 {
		t.Fatal("missing binary reported success")
	}
}

func TestNativeEnvAndWorkingDir(t *testing.T) {
	n := NewNative("")
	if !n.IsAvailable() {
		t.Skip("no shell on host")
	}

	dir := t.TempDir()
	result := n.Execute(context.Background(), "echo $GREETING && pwd", Options{
		WorkingDir: dir,
		Env:        map[string]string{"GREETING": "hi"},
		Timeout:    5 * time.Second,
	})
	if result.ExitCode != 0 {
		t.Fatalf("exit code = %d, stderr = %q", result.ExitCode, result.Stderr)
	}
	if !strings.Contains(result.Stdout, "hi") {
		t.Fatalf("env var not passed, stdout = %q", result.Stdout)
	}
	if !strings.Contains(result.Stdout, dir) {
		t.Fatalf("working dir not honored, stdout = %q", result.Stdout)
	}
}

func TestContainerUnavailableReturnsSentinel(t *testing.T) {
	c := NewContainer("", "", "")
	if c.IsAvailable() {
		t.Skip("docker present on host")
	}

	result := c.Execute(context.Background(), "echo hi", Options{Timeout: time.Second})
	if result.ExitCode != UnavailableExitCode {
		t.Fatalf("exit code = %d, want %d", result.ExitCode, UnavailableExitCode)
	}
	if result.Stderr == "" {
		t.Fatal("unavailable result has empty stderr")
	}
}

func TestSubsystemUnavailableOffWindows(t *testing.T) {
	s := NewSubsystem("")
	if s.IsAvailable() {
		t.Skip("subsystem present on host")
	}

	result := s.Execute(context.Background(), "echo hi", Options{Timeout: time.Second})
	if result.ExitCode != UnavailableExitCode {
		t.Fatalf("exit code = %d, want %d", result.ExitCode, UnavailableExitCode)
	}
}

func TestTranslatePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`C:\work\app`, "/mnt/c/work/app"},
		{`D:\`, "/mnt/d/"},
		{`relative\dir`, "relative/dir"},
		{"/already/posix", "/already/posix"},
	}
	for _, tc := range cases {
		if got := TranslatePath(tc.in); got != tc.want {
			t.Errorf("TranslatePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResultFailed(t *testing.T) {
	if (Result{ExitCode: 0}).Failed() {
		t.Fatal("clean exit reported as failed")
	}
	if !(Result{ExitCode: 1}).Failed() {
		t.Fatal("non-zero exit reported as success")
	}
}
