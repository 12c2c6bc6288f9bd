package policy

import (
	"fmt"
	"strings"

	"forgeline/pkg/types"
)

// Scoring weights and thresholds. ApprovalThreshold is the score at or
// above which an operation must pass the approval gate.
const (
	criticalWeight    = 0.4
	highRiskWeight    = 0.15
	networkCapWeight  = 0.2
	filesysCapWeight  = 0.1
	ApprovalThreshold = 0.6
)

var criticalPatterns = []string{
	"rm -rf", "format", "del /", "deltree",
	"__import__", "importlib", "ctypes",
	"sys.exit", "os._exit",
}

var highRiskPatterns = []string{
	"subprocess", "os.system", "eval", "exec",
	"open(", "write(", "remove", "rmdir", "unlink",
	"shutil", "pathlib", "socket", "requests",
	"urllib", "http", "ftp", "ssh",
}

// Scorer assesses the risk of a concrete code body, complementing the
// keyword Classifier which works on operation descriptions.
type Scorer struct {
	approvalThreshold float64
}

// NewScorer creates a scorer with the default approval threshold
func NewScorer() *Scorer {
	return &Scorer{approvalThreshold: ApprovalThreshold}
}

// Assess scores the code in [0, 1]. Every critical substring adds 0.4,
// every high-risk substring 0.15; requested network/filesystem
// capabilities in context add 0.2/0.1. The score is monotonic in the
// set of matched patterns.
func (s *Scorer) Assess(code string, context map[string]any) types.RiskAssessment {
	var factors []string
	score := 0.0

	lower := strings.ToLower(code)

	for _, pattern := range criticalPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			factors = append(factors, fmt.Sprintf("critical pattern: %s", pattern))
			score += criticalWeight
		}
	}
	for _, pattern := range highRiskPatterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			factors = append(factors, fmt.Sprintf("high-risk pattern: %s", pattern))
			score += highRiskWeight
		}
	}

	for _, capability := range capabilities(context) {
		switch capability {
		case "network":
			factors = append(factors, "network access requested")
			score += networkCapWeight
		case "filesystem":
			factors = append(factors, "filesystem access requested")
			score += filesysCapWeight
		}
	}

	if score > 1.0 {
		score = 1.0
	}

	var level types.RiskLevel
	switch {
	case score >= 0.8:
		level = types.RiskCritical
	case score >= 0.6:
		level = types.RiskHigh
	case score >= 0.3:
		level = types.RiskMedium
	default:
		level = types.RiskLow
	}

	return types.RiskAssessment{
		Level:            level,
		Score:            score,
		Factors:          factors,
		RequiresApproval: score >= s.approvalThreshold,
	}
}

func capabilities(context map[string]any) []string {
	if context == nil {
		return nil
	}
	switch caps := context["capabilities"].(type) {
	case []string:
		return caps
	case []any:
		out := make([]string, 0, len(caps))
		for _, c := range caps {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
