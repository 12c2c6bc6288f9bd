package planner

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"forgeline/internal/graph"
	"forgeline/pkg/types"
)

// Plan is the reviewable YAML form of a task graph
type Plan struct {
	Goal  string           `yaml:"goal"`
	Tasks []types.TaskNode `yaml:"tasks"`
}

// LoadPlan reads a YAML plan file and builds its task graph. Unknown
// task types and dependency cycles are rejected.
func LoadPlan(path string) (*Plan, *graph.TaskGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, nil, fmt.Errorf("parsing plan file: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return nil, nil, fmt.Errorf("plan file %s has no tasks", path)
	}

	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if task.ID == "" {
			return nil, nil, fmt.Errorf("plan task %d has no id", i)
		}
		if task.Type == "" {
			task.Type = types.TaskTypeGeneric
		}
		if !validTaskType(task.Type) {
			return nil, nil, fmt.Errorf("plan task %s has unknown type %q", task.ID, task.Type)
		}
	}

	g, err := build(plan.Tasks)
	if err != nil {
		return nil, nil, err
	}
	return &plan, g, nil
}

// SavePlan writes a plan to a YAML file
func SavePlan(path string, plan *Plan) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing plan file: %w", err)
	}
	return nil
}

func validTaskType(t types.TaskType) bool {
	for _, known := range types.TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}
