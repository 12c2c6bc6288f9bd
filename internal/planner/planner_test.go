package planner

import (
	"os"
	"path/filepath"
	"testing"

	"forgeline/pkg/types"
)

func TestDecomposeGoalClasses(t *testing.T) {
	cases := []struct {
		goal      string
		firstType types.TaskType
		count     int
	}{
		{"build a web app for recipes", types.TaskTypeSetup, 6},
		{"build a rest api for payments", types.TaskTypeSetup, 5},
		{"build a cli json formatter", types.TaskTypeSetup, 5},
		{"summarize a dataset", types.TaskTypeSetup, 4},
	}

	for _, tc := range cases {
		g, err := Decompose(tc.goal)
		if err != nil {
			t.Fatalf("Decompose(%q): %v", tc.goal, err)
		}
		if g.Len() != tc.count {
			t.Errorf("Decompose(%q) produced %d tasks, want %d", tc.goal, g.Len(), tc.count)
		}
		ready := g.ReadyTasks()
		if len(ready) != 1 || ready[0].Type != tc.firstType {
			t.Errorf("Decompose(%q) first ready = %v", tc.goal, ready)
		}
	}
}

func TestDecomposedPlanDrains(t *testing.T) {
	g, err := Decompose("build a web app")
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	for !g.Complete() {
		ready := g.ReadyTasks()
		if len(ready) == 0 {
			t.Fatal("plan stalled before completion")
		}
		for _, task := range ready {
			g.MarkCompleted(task.ID)
		}
	}
}

func TestPlanFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	plan := &Plan{
		Goal: "build a json formatter cli",
		Tasks: []types.TaskNode{
			{ID: "scaffold", Description: "Create project structure", Type: types.TaskTypeSetup},
			{ID: "commands", Description: "Implement commands", Type: types.TaskTypeDevelopment, Dependencies: []string{"scaffold"}},
		},
	}

	if err := SavePlan(path, plan); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	loaded, g, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if loaded.Goal != plan.Goal || len(loaded.Tasks) != 2 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if g.Len() != 2 {
		t.Fatalf("graph has %d tasks", g.Len())
	}
}

func TestLoadPlanRejectsCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	content := `goal: cyclic
tasks:
  - id: a
    description: first
    type: setup
    dependencies: [b]
  - id: b
    description: second
    type: development
    dependencies: [a]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	if _, _, err := LoadPlan(path); err == nil {
		t.Fatal("cyclic plan loaded without error")
	}
}

func TestLoadPlanRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	content := `goal: bad type
tasks:
  - id: a
    description: first
    type: quantum
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	if _, _, err := LoadPlan(path); err == nil {
		t.Fatal("unknown task type accepted")
	}
}

func TestLoadPlanDefaultsType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	content := `goal: typed default
tasks:
  - id: a
    description: first
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	plan, _, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if plan.Tasks[0].Type != types.TaskTypeGeneric {
		t.Fatalf("type = %s, want generic", plan.Tasks[0].Type)
	}
}
