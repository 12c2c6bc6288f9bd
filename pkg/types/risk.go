package types

// RiskLevel grades how dangerous an operation looks
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment is the result of scoring a code body or operation.
// Score is clamped to [0, 1]; RequiresApproval derives from a fixed
// threshold over the score.
type RiskAssessment struct {
	Level            RiskLevel `json:"level"`
	Score            float64   `json:"score"`
	Factors          []string  `json:"factors,omitempty"`
	RequiresApproval bool      `json:"requires_approval"`
}
