package mission

import (
	"context"
	"fmt"
	"log"
	"strings"

	"forgeline/internal/events"
	"forgeline/internal/generator"
	"forgeline/pkg/types"
)

// dispatch routes a task to its type handler. Handler panics and
// errors are both converted to a failed step by the caller; nothing
// escapes past the controller.
func (c *Controller) dispatch(ctx context.Context, task *types.TaskNode) (outputs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			outputs = nil
			err = fmt.Errorf("step handler panicked: %v", r)
		}
	}()

	switch task.Type {
	case types.TaskTypeSetup:
		return c.handleSetup(task)
	case types.TaskTypeDevelopment:
		return c.handleDevelopment(ctx, task)
	case types.TaskTypeTesting:
		return c.handleTesting(ctx, task)
	case types.TaskTypePackaging:
		return c.handlePackaging(task)
	case types.TaskTypeDocumentation:
		return c.handleDocumentation(task)
	case types.TaskTypeFrontend:
		return c.handleFrontend(task)
	case types.TaskTypeBackend:
		return c.handleBackend(task)
	case types.TaskTypeDatabase:
		return c.handleDatabase(task)
	case types.TaskTypeDeployment:
		return c.handleDeployment(task)
	default:
		return map[string]any{"result": fmt.Sprintf("task %s completed", task.Description)}, nil
	}
}

func (c *Controller) handleSetup(task *types.TaskNode) (map[string]any, error) {
	dir, err := c.workspaces.Create(c.mission.ID, c.mission.Description)
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return map[string]any{"workspace": dir}, nil
}

// handleDevelopment asks the code generator for content, falling back
// to the deterministic template when the generator fails, and writes
// the result behind a denylist veto.
func (c *Controller) handleDevelopment(ctx context.Context, task *types.TaskNode) (map[string]any, error) {
	code, err := c.gen.Generate(ctx, task.Description, map[string]any{
		"mission_description": c.mission.Description,
	}, "python")
	if err != nil {
		log.Printf("[mission] generator failed for %s, using template: %v", task.ID, err)
		code, err = generator.NewTemplate().Generate(ctx, task.Description, nil, "python")
		if err != nil {
			return nil, fmt.Errorf("template fallback: %w", err)
		}
	}

	assessment := c.scorer.Assess(code, nil)

	if err := c.workspaces.WriteFile(c.mission.ID, "main.py", []byte(code), c.vetCode); err != nil {
		return nil, err
	}

	c.publish(events.EventCodeGenerated, map[string]any{
		"mission_id": c.mission.ID,
		"step_id":    task.ID,
		"file":       "main.py",
		"risk_score": assessment.Score,
	})
	return map[string]any{"file": "main.py", "risk_level": string(assessment.Level)}, nil
}

// vetCode is the validation callback for generated file writes
func (c *Controller) vetCode(path string, content []byte) error {
	ok, violations := c.denylist.CheckCode(string(content))
	if !ok {
		return fmt.Errorf("generated code rejected: %s", strings.Join(violations, "; "))
	}
	return nil
}

// handleTesting runs the project tests. On failure the captured error
// is routed through the refiner exactly once and the tests rerun; the
// second verdict is final.
func (c *Controller) handleTesting(ctx context.Context, task *types.TaskNode) (map[string]any, error) {
	dir := c.workspaces.Get(c.mission.ID)
	if dir == "" {
		return nil, fmt.Errorf("no workspace for mission %s", c.mission.ID)
	}

	outcome := c.tests.Run(ctx, dir)
	if outcome.Success {
		c.publish(events.EventTestPassed, map[string]any{
			"mission_id": c.mission.ID,
			"passed":     outcome.Passed,
		})
		return map[string]any{"passed": outcome.Passed, "skipped": outcome.Skipped}, nil
	}

	if c.refiner != nil {
		refined, err := generator.RefineOnError(ctx, c.refiner, outcome.Output, "main.py")
		if err == nil && refined.Diff != "" {
			if writeErr := c.workspaces.WriteFile(c.mission.ID, "main.py", []byte(refined.Diff), c.vetCode); writeErr != nil {
				log.Printf("[mission] applying refinement: %v", writeErr)
			} else {
				c.publish(events.EventCodeModified, map[string]any{
					"mission_id": c.mission.ID,
					"file":       "main.py",
				})
			}
		}

		outcome = c.tests.Run(ctx, dir)
		if outcome.Success {
			c.publish(events.EventTestPassed, map[string]any{
				"mission_id": c.mission.ID,
				"passed":     outcome.Passed,
				"retried":    true,
			})
			return map[string]any{"passed": outcome.Passed, "retried": true}, nil
		}
	}

	c.publish(events.EventTestFailed, map[string]any{
		"mission_id": c.mission.ID,
		"failed":     outcome.Failed,
		"error":      outcome.Error,
	})
	return nil, fmt.Errorf("tests failed: %s", outcome.Error)
}

func (c *Controller) handlePackaging(task *types.TaskNode) (map[string]any, error) {
	return map[string]any{"result": "project packaged"}, nil
}

func (c *Controller) handleDocumentation(task *types.TaskNode) (map[string]any, error) {
	readme := fmt.Sprintf("# %s\n\n%s\n\nGenerated by forgeline.\n", c.mission.ID, c.mission.Description)
	if err := c.workspaces.WriteFile(c.mission.ID, "README.md", []byte(readme), nil); err != nil {
		return nil, err
	}
	return map[string]any{"file": "README.md"}, nil
}

func (c *Controller) handleFrontend(task *types.TaskNode) (map[string]any, error) {
	packageJSON := `{
  "name": "frontend",
  "version": "1.0.0",
  "scripts": {
    "start": "react-scripts start",
    "build": "react-scripts build"
  },
  "dependencies": {
    "react": "^18.0.0",
    "react-dom": "^18.0.0"
  }
}
`
	appJS := `import React from 'react';

function App() {
  return (
    <div className="App">
      <h1>Generated application</h1>
    </div>
  );
}

export default App;
`
	if err := c.workspaces.WriteFile(c.mission.ID, "frontend/package.json", []byte(packageJSON), nil); err != nil {
		return nil, err
	}
	if err := c.workspaces.WriteFile(c.mission.ID, "frontend/src/App.js", []byte(appJS), nil); err != nil {
		return nil, err
	}
	return map[string]any{"dir": "frontend"}, nil
}

func (c *Controller) handleBackend(task *types.TaskNode) (map[string]any, error) {
	mainPy := `from fastapi import FastAPI

app = FastAPI()

@app.get("/")
def read_root():
    return {"message": "Hello from the generated API"}

@app.get("/health")
def health():
    return {"status": "healthy"}
`
	if err := c.workspaces.WriteFile(c.mission.ID, "backend/main.py", []byte(mainPy), nil); err != nil {
		return nil, err
	}
	requirements := "fastapi>=0.100.0\nuvicorn>=0.23.0\n"
	if err := c.workspaces.WriteFile(c.mission.ID, "backend/requirements.txt", []byte(requirements), nil); err != nil {
		return nil, err
	}
	return map[string]any{"dir": "backend"}, nil
}

func (c *Controller) handleDatabase(task *types.TaskNode) (map[string]any, error) {
	schema := "-- Database schema\nCREATE TABLE IF NOT EXISTS users (id SERIAL PRIMARY KEY);\n"
	if err := c.workspaces.WriteFile(c.mission.ID, "database/schema.sql", []byte(schema), nil); err != nil {
		return nil, err
	}
	return map[string]any{"file": "database/schema.sql"}, nil
}

func (c *Controller) handleDeployment(task *types.TaskNode) (map[string]any, error) {
	dockerfile := "FROM python:3.12-slim\nWORKDIR /app\nCOPY . .\nCMD [\"python\", \"-m\", \"uvicorn\", \"backend.main:app\"]\n"
	if err := c.workspaces.WriteFile(c.mission.ID, "Dockerfile", []byte(dockerfile), nil); err != nil {
		return nil, err
	}
	compose := "services:\n  backend:\n    build: .\n    ports:\n      - \"8000:8000\"\n"
	if err := c.workspaces.WriteFile(c.mission.ID, "docker-compose.yml", []byte(compose), nil); err != nil {
		return nil, err
	}
	return map[string]any{"files": []any{"Dockerfile", "docker-compose.yml"}}, nil
}
