// Package graph holds the in-memory task dependency graph for a mission
package graph

import (
	"errors"
	"fmt"
	"sync"

	"forgeline/pkg/types"
)

// ErrPlanCycle is returned when the dependency graph contains a cycle.
// A cyclic plan can never reach readiness, so it is reported as a plan
// defect instead of stalling silently.
var ErrPlanCycle = errors.New("plan contains a dependency cycle")

// TaskGraph is a DAG of task nodes keyed by id. Dependency ids that
// reference tasks absent from the graph are treated as trivially
// satisfied, which tolerates partial plans.
type TaskGraph struct {
	mu    sync.Mutex
	tasks map[string]*types.TaskNode
	order []string // insertion order of task ids
}

// New creates an empty task graph
func New() *TaskGraph {
	return &TaskGraph{
		tasks: make(map[string]*types.TaskNode),
	}
}

// Add inserts a task, or replaces it when the id already exists.
// New tasks start pending unless a status was set by the caller.
func (g *TaskGraph) Add(task *types.TaskNode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if task.Status == "" {
		task.Status = types.TaskStatusPending
	}
	if _, exists := g.tasks[task.ID]; !exists {
		g.order = append(g.order, task.ID)
	}
	g.tasks[task.ID] = task
}

// Get returns the task with the given id, or nil
func (g *TaskGraph) Get(id string) *types.TaskNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks[id]
}

// Len returns the number of tasks in the graph
func (g *TaskGraph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// ReadyTasks returns, in insertion order, every task that can run
// right now: pending tasks whose dependencies are all completed (or
// absent from the graph), which transition to ready as a side effect,
// plus tasks already marked ready but not yet started. Re-delivering
// unstarted ready tasks means a caller that dispatches only part of
// the returned set cannot strand the rest.
func (g *TaskGraph) ReadyTasks() []*types.TaskNode {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []*types.TaskNode
	for _, id := range g.order {
		task := g.tasks[id]
		switch task.Status {
		case types.TaskStatusPending:
			if g.depsSatisfied(task) {
				task.Status = types.TaskStatusReady
				ready = append(ready, task)
			}
		case types.TaskStatusReady:
			ready = append(ready, task)
		}
	}
	return ready
}

func (g *TaskGraph) depsSatisfied(task *types.TaskNode) bool {
	for _, depID := range task.Dependencies {
		dep, exists := g.tasks[depID]
		if !exists {
			continue // dangling dependency, unsatisfiable by nothing
		}
		if dep.Status != types.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// MarkRunning transitions a task to running. It returns an error when
// the task already started or finished, or when any dependency is not
// yet completed, so a task cannot be dispatched twice or early.
func (g *TaskGraph) MarkRunning(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[id]
	if !exists {
		return fmt.Errorf("unknown task %q", id)
	}
	if task.Status != types.TaskStatusPending && task.Status != types.TaskStatusReady {
		return fmt.Errorf("task %q is %s, not runnable", id, task.Status)
	}
	if !g.depsSatisfied(task) {
		return fmt.Errorf("task %q has incomplete dependencies", id)
	}
	task.Status = types.TaskStatusRunning
	return nil
}

// MarkCompleted transitions a task to completed. Idempotent; unknown
// ids are ignored.
func (g *TaskGraph) MarkCompleted(id string) {
	g.setStatus(id, types.TaskStatusCompleted)
}

// MarkFailed transitions a task to failed. Idempotent.
func (g *TaskGraph) MarkFailed(id string) {
	g.setStatus(id, types.TaskStatusFailed)
}

// MarkSkipped transitions a task to skipped. Idempotent.
func (g *TaskGraph) MarkSkipped(id string) {
	g.setStatus(id, types.TaskStatusSkipped)
}

func (g *TaskGraph) setStatus(id string, status types.TaskStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, exists := g.tasks[id]; exists {
		task.Status = status
	}
}

// Complete reports whether every task is completed or skipped
func (g *TaskGraph) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range g.tasks {
		if task.Status != types.TaskStatusCompleted && task.Status != types.TaskStatusSkipped {
			return false
		}
	}
	return true
}

// Stalled reports whether the graph has pending tasks but none of them
// can ever become ready. With acyclic plans this only happens when a
// dependency has failed; with cyclic plans it is the cycle manifesting.
func (g *TaskGraph) Stalled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	pending := 0
	for _, task := range g.tasks {
		switch task.Status {
		case types.TaskStatusPending:
			pending++
			if g.depsSatisfied(task) {
				return false
			}
		case types.TaskStatusReady, types.TaskStatusRunning:
			return false
		}
	}
	return pending > 0
}

// ExecutionOrder returns a total order consistent with dependencies,
// selecting repeatedly among tasks whose dependencies are already
// placed. Ties between independently-ready tasks break by insertion
// order; callers must not rely on any stronger ordering. Returns
// ErrPlanCycle when no progress is possible.
func (g *TaskGraph) ExecutionOrder() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	placed := make(map[string]bool, len(g.tasks))
	order := make([]string, 0, len(g.tasks))

	for len(order) < len(g.tasks) {
		progressed := false
		for _, id := range g.order {
			if placed[id] {
				continue
			}
			task := g.tasks[id]
			satisfied := true
			for _, depID := range task.Dependencies {
				if _, exists := g.tasks[depID]; exists && !placed[depID] {
					satisfied = false
					break
				}
			}
			if satisfied {
				order = append(order, id)
				placed[id] = true
				progressed = true
			}
		}
		if !progressed {
			return nil, ErrPlanCycle
		}
	}
	return order, nil
}

// DetectCycle checks the graph for dependency cycles without mutating
// any task state. Run at construction time so a defective plan fails
// before execution starts.
func (g *TaskGraph) DetectCycle() error {
	if _, err := g.ExecutionOrder(); err != nil {
		return err
	}
	return nil
}

// Tasks returns all tasks in insertion order
func (g *TaskGraph) Tasks() []*types.TaskNode {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*types.TaskNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}
