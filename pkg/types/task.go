// Package types defines core data structures for Forgeline
package types

// TaskStatus represents the current state of a task node
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// TaskType represents the kind of work a task node carries.
// The set is closed: the mission controller dispatches over it
// exhaustively and unknown values fall through to the generic handler.
type TaskType string

const (
	TaskTypeSetup         TaskType = "setup"
	TaskTypeDevelopment   TaskType = "development"
	TaskTypeTesting       TaskType = "testing"
	TaskTypePackaging     TaskType = "packaging"
	TaskTypeDocumentation TaskType = "documentation"
	TaskTypeFrontend      TaskType = "frontend"
	TaskTypeBackend       TaskType = "backend"
	TaskTypeDatabase      TaskType = "database"
	TaskTypeDeployment    TaskType = "deployment"
	TaskTypeGeneric       TaskType = "generic"
)

// TaskTypes lists every known task type in dispatch order.
var TaskTypes = []TaskType{
	TaskTypeSetup,
	TaskTypeDevelopment,
	TaskTypeTesting,
	TaskTypePackaging,
	TaskTypeDocumentation,
	TaskTypeFrontend,
	TaskTypeBackend,
	TaskTypeDatabase,
	TaskTypeDeployment,
	TaskTypeGeneric,
}

// TaskNode is a unit of work in a mission's dependency graph.
// Nodes are owned by the graph: status transitions happen only through
// the graph's methods, and nodes are never deleted during a mission.
type TaskNode struct {
	ID           string         `json:"id" yaml:"id"`
	Description  string         `json:"description" yaml:"description"`
	Type         TaskType       `json:"type" yaml:"type"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Status       TaskStatus     `json:"status" yaml:"-"`
	Metadata     map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Terminal reports whether the status is one a task never leaves.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusSkipped
}
