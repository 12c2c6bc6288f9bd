package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.RunnerType != "native" {
		t.Fatalf("runner = %q", cfg.RunnerType)
	}
	if cfg.StepTimeout != 5*time.Minute {
		t.Fatalf("step timeout = %v", cfg.StepTimeout)
	}
	if !cfg.AutoApproveLowRisk {
		t.Fatal("auto-approve default should be on")
	}
	if cfg.MaxRunnerSlots != 4 {
		t.Fatalf("runner slots = %d", cfg.MaxRunnerSlots)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FORGELINE_RUNNER", "container")
	t.Setenv("FORGELINE_STEP_TIMEOUT", "90s")
	t.Setenv("FORGELINE_PARALLELISM", "8")
	t.Setenv("FORGELINE_AUTO_APPROVE_LOW_RISK", "false")

	cfg := Load()
	if cfg.RunnerType != "container" {
		t.Fatalf("runner = %q", cfg.RunnerType)
	}
	if cfg.StepTimeout != 90*time.Second {
		t.Fatalf("step timeout = %v", cfg.StepTimeout)
	}
	if cfg.Parallelism != 8 {
		t.Fatalf("parallelism = %d", cfg.Parallelism)
	}
	if cfg.AutoApproveLowRisk {
		t.Fatal("auto-approve override ignored")
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("FORGELINE_PARALLELISM", "many")
	t.Setenv("FORGELINE_STEP_TIMEOUT", "soon")

	cfg := Load()
	if cfg.Parallelism != 2 {
		t.Fatalf("parallelism = %d, want fallback 2", cfg.Parallelism)
	}
	if cfg.StepTimeout != 5*time.Minute {
		t.Fatalf("step timeout = %v, want fallback", cfg.StepTimeout)
	}
}
