// Package events provides in-process pub/sub for mission lifecycle events
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"

	EventMissionCreated   EventType = "mission.created"
	EventMissionStarted   EventType = "mission.started"
	EventMissionCompleted EventType = "mission.completed"
	EventMissionFailed    EventType = "mission.failed"
	EventMissionPaused    EventType = "mission.paused"
	EventMissionResumed   EventType = "mission.resumed"
	EventMissionCancelled EventType = "mission.cancelled"

	EventPlanGenerated EventType = "plan.generated"

	EventStepStarted          EventType = "step.started"
	EventStepCompleted        EventType = "step.completed"
	EventStepFailed           EventType = "step.failed"
	EventStepApprovalRequired EventType = "step.approval_required"

	EventCodeGenerated EventType = "code.generated"
	EventCodeModified  EventType = "code.modified"

	EventTestPassed EventType = "test.passed"
	EventTestFailed EventType = "test.failed"

	EventWorkspaceCreated EventType = "workspace.created"
	EventFileModified     EventType = "file.modified"
)

// Event is an immutable envelope. Ownership transfers to the bus on
// publish; subscribers must not mutate the payload.
type Event struct {
	Type          EventType      `json:"type"`
	Payload       map[string]any `json:"payload,omitempty"`
	Source        string         `json:"source"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	CausationID   string         `json:"causation_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// New creates an event envelope with the current timestamp and a fresh
// correlation id.
func New(eventType EventType, payload map[string]any, source string) Event {
	return Event{
		Type:          eventType,
		Payload:       payload,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}

// Caused returns a copy of the event carrying the given causation id
func (e Event) Caused(causationID string) Event {
	e.CausationID = causationID
	return e
}

// Format renders an event for JSONL output
func Format(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// Handler processes a delivered event. A non-nil error (or a panic)
// sends the event to the dead-letter list without affecting the other
// subscribers.
type Handler func(Event) error
