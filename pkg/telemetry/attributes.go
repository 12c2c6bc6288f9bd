// Package telemetry provides OpenTelemetry observability for Forgeline
package telemetry

import "go.opentelemetry.io/otel/attribute"

// Semantic convention keys for Forgeline-specific attributes
const (
	// Mission attributes
	KeyMissionID     = "forgeline.mission.id"
	KeyMissionStatus = "forgeline.mission.status"
	KeyMissionGoal   = "forgeline.mission.goal"

	// Step attributes
	KeyStepID     = "forgeline.step.id"
	KeyStepType   = "forgeline.step.type"
	KeyStepStatus = "forgeline.step.status"

	// Runner attributes
	KeyRunnerName = "forgeline.runner.name"
	KeyExitCode   = "forgeline.runner.exit_code"

	// Risk attributes
	KeyRiskLevel        = "forgeline.risk.level"
	KeyRiskScore        = "forgeline.risk.score"
	KeyRequiresApproval = "forgeline.risk.requires_approval"

	// Error attributes
	KeyErrorCategory = "forgeline.error.category"
)

// Error categories
const (
	ErrorCategoryRunner   = "runner"
	ErrorCategoryDatabase = "database"
	ErrorCategoryApproval = "approval"
	ErrorCategoryPlan     = "plan"
	ErrorCategoryTimeout  = "timeout"
	ErrorCategoryUnknown  = "unknown"
)

// StepAttrs returns the attribute set for a step
func StepAttrs(missionID, stepID, stepType, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(KeyMissionID, missionID),
		attribute.String(KeyStepID, stepID),
		attribute.String(KeyStepType, stepType),
		attribute.String(KeyStepStatus, status),
	}
}

// MissionAttrs returns the attribute set for a mission
func MissionAttrs(missionID, status, goal string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(KeyMissionID, missionID),
		attribute.String(KeyMissionStatus, status),
		attribute.String(KeyMissionGoal, goal),
	}
}
