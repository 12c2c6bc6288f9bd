// Package planner turns a mission goal into a task graph. Built-in
// decomposition covers the common goal classes; a plan can also be
// loaded from a YAML file so it can be reviewed before execution.
package planner

import (
	"fmt"
	"strings"

	"forgeline/internal/graph"
	"forgeline/pkg/types"
)

// Decompose builds the task graph for a goal description. The graph
// is cycle-checked before it is returned.
func Decompose(description string) (*graph.TaskGraph, error) {
	lower := strings.ToLower(description)

	var nodes []types.TaskNode
	switch {
	case strings.Contains(lower, "web") || strings.Contains(lower, "app"):
		nodes = webTasks()
	case strings.Contains(lower, "api"):
		nodes = apiTasks()
	case strings.Contains(lower, "cli") || strings.Contains(lower, "command"):
		nodes = cliTasks()
	default:
		nodes = genericTasks()
	}

	return build(nodes)
}

func build(nodes []types.TaskNode) (*graph.TaskGraph, error) {
	g := graph.New()
	for i := range nodes {
		g.Add(&nodes[i])
	}
	if err := g.DetectCycle(); err != nil {
		return nil, fmt.Errorf("building plan: %w", err)
	}
	return g, nil
}

func webTasks() []types.TaskNode {
	return []types.TaskNode{
		{ID: "scaffold", Description: "Create project structure", Type: types.TaskTypeSetup},
		{ID: "frontend", Description: "Set up frontend framework", Type: types.TaskTypeFrontend, Dependencies: []string{"scaffold"}},
		{ID: "backend", Description: "Set up backend server", Type: types.TaskTypeBackend, Dependencies: []string{"scaffold"}},
		{ID: "features", Description: "Implement core features", Type: types.TaskTypeDevelopment, Dependencies: []string{"frontend", "backend"}},
		{ID: "tests", Description: "Write tests", Type: types.TaskTypeTesting, Dependencies: []string{"features"}},
		{ID: "package", Description: "Package for deployment", Type: types.TaskTypePackaging, Dependencies: []string{"tests"}},
	}
}

func apiTasks() []types.TaskNode {
	return []types.TaskNode{
		{ID: "scaffold", Description: "Create project structure", Type: types.TaskTypeSetup},
		{ID: "endpoints", Description: "Define API endpoints", Type: types.TaskTypeBackend, Dependencies: []string{"scaffold"}},
		{ID: "implement", Description: "Implement endpoints", Type: types.TaskTypeDevelopment, Dependencies: []string{"endpoints"}},
		{ID: "auth", Description: "Add authentication", Type: types.TaskTypeBackend, Dependencies: []string{"implement"}},
		{ID: "tests", Description: "Write API tests", Type: types.TaskTypeTesting, Dependencies: []string{"auth"}},
	}
}

func cliTasks() []types.TaskNode {
	return []types.TaskNode{
		{ID: "scaffold", Description: "Create project structure", Type: types.TaskTypeSetup},
		{ID: "interface", Description: "Define CLI interface", Type: types.TaskTypeGeneric, Dependencies: []string{"scaffold"}},
		{ID: "commands", Description: "Implement commands", Type: types.TaskTypeDevelopment, Dependencies: []string{"interface"}},
		{ID: "docs", Description: "Add help and documentation", Type: types.TaskTypeDocumentation, Dependencies: []string{"commands"}},
		{ID: "tests", Description: "Write tests", Type: types.TaskTypeTesting, Dependencies: []string{"commands"}},
	}
}

func genericTasks() []types.TaskNode {
	return []types.TaskNode{
		{ID: "scaffold", Description: "Create project structure", Type: types.TaskTypeSetup},
		{ID: "implement", Description: "Implement core functionality", Type: types.TaskTypeDevelopment, Dependencies: []string{"scaffold"}},
		{ID: "tests", Description: "Write tests", Type: types.TaskTypeTesting, Dependencies: []string{"implement"}},
		{ID: "docs", Description: "Create documentation", Type: types.TaskTypeDocumentation, Dependencies: []string{"implement"}},
	}
}
