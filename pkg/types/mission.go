package types

import "time"

// MissionStatus represents the lifecycle state of a mission
type MissionStatus string

const (
	MissionStatusCreated   MissionStatus = "created"
	MissionStatusPlanning  MissionStatus = "planning"
	MissionStatusExecuting MissionStatus = "executing"
	MissionStatusPaused    MissionStatus = "paused"
	MissionStatusCompleted MissionStatus = "completed"
	MissionStatusFailed    MissionStatus = "failed"
	MissionStatusCancelled MissionStatus = "cancelled"
)

// Terminal reports whether a mission can no longer change state.
func (s MissionStatus) Terminal() bool {
	return s == MissionStatusCompleted || s == MissionStatusFailed || s == MissionStatusCancelled
}

// MissionState is the durable record of one end-to-end goal execution.
// The mission controller owns it and persists it after every status
// transition.
type MissionState struct {
	ID             string         `json:"mission_id"`
	Status         MissionStatus  `json:"status"`
	Description    string         `json:"description"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps int            `json:"completed_steps"`
	LastError      string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// StepStatus represents the execution state of a single step
type StepStatus string

const (
	StepStatusPending          StepStatus = "pending"
	StepStatusRunning          StepStatus = "running"
	StepStatusCompleted        StepStatus = "completed"
	StepStatusFailed           StepStatus = "failed"
	StepStatusApprovalRequired StepStatus = "approval_required"
	StepStatusSkipped          StepStatus = "skipped"
)

// StepState is the execution-time record of one task node attempt.
// Keyed by (StepID, MissionID); one per execution attempt.
type StepState struct {
	StepID      string         `json:"step_id"`
	MissionID   string         `json:"mission_id"`
	Status      StepStatus     `json:"status"`
	Type        TaskType       `json:"step_type"`
	Description string         `json:"description"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
}
