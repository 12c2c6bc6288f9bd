// Package policy classifies and scores the risk of operations before
// they reach an execution backend. The heuristics here are deliberately
// conservative and false-positive tolerant: they narrow the set of
// operations that need human attention, they are not a security
// boundary.
package policy

import (
	"fmt"
	"strings"

	"forgeline/pkg/types"
)

// RiskCategory groups related risk keywords
type RiskCategory string

const (
	CategoryFilesystem    RiskCategory = "filesystem"
	CategoryNetwork       RiskCategory = "network"
	CategorySystem        RiskCategory = "system"
	CategoryCodeExecution RiskCategory = "code_execution"
	CategoryDataAccess    RiskCategory = "data_access"
)

// categoryKeywords is consulted in a fixed order so classifications are
// deterministic.
var categoryOrder = []RiskCategory{
	CategoryFilesystem,
	CategoryNetwork,
	CategorySystem,
	CategoryCodeExecution,
	CategoryDataAccess,
}

var categoryKeywords = map[RiskCategory][]string{
	CategoryFilesystem: {
		"file", "write", "read", "delete", "remove",
		"mkdir", "rmdir", "path", "directory",
	},
	CategoryNetwork: {
		"http", "https", "socket", "request", "url",
		"download", "upload", "api", "fetch",
	},
	CategorySystem: {
		"subprocess", "os.", "sys.", "shell", "command",
		"execute", "run", "process",
	},
	CategoryCodeExecution: {
		"eval", "exec", "compile", "import", "__",
	},
	CategoryDataAccess: {
		"database", "sql", "query", "select", "insert",
		"password", "credential", "secret", "key",
	},
}

// Classification is the result of keyword-based risk classification
type Classification struct {
	Level       types.RiskLevel
	Categories  []RiskCategory
	Confidence  float64
	Explanation string
}

// Classifier maps an operation description to a risk level via
// case-insensitive keyword matching.
type Classifier struct{}

// NewClassifier creates a risk classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify inspects the operation text for category keywords. Any hit
// in system or code-execution yields high; more than two distinct
// categories yields medium; otherwise low.
func (c *Classifier) Classify(operation string, context map[string]any) Classification {
	lower := strings.ToLower(operation)

	var categories []RiskCategory
	for _, category := range categoryOrder {
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(lower, keyword) {
				categories = append(categories, category)
				break
			}
		}
	}

	if len(categories) == 0 {
		return Classification{
			Level:       types.RiskLow,
			Confidence:  0.8,
			Explanation: "no high-risk patterns detected",
		}
	}

	level := types.RiskLow
	for _, category := range categories {
		if category == CategorySystem || category == CategoryCodeExecution {
			level = types.RiskHigh
			break
		}
	}
	if level == types.RiskLow && len(categories) > 2 {
		level = types.RiskMedium
	}

	return Classification{
		Level:       level,
		Categories:  categories,
		Confidence:  0.7 + 0.1*float64(len(categories)),
		Explanation: fmt.Sprintf("detected categories: %v", categories),
	}
}
