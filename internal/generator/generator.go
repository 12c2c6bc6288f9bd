// Package generator defines the code generation collaborators the
// mission controller calls across a narrow boundary. Real
// implementations talk to a model backend; the package ships a
// deterministic template fallback so missions still make progress
// when no backend is configured.
package generator

import (
	"context"
	"fmt"
	"strings"
)

// CodeGenerator produces source code for a prompt
type CodeGenerator interface {
	Generate(ctx context.Context, prompt string, genContext map[string]any, language string) (string, error)
}

// RefineResult is the outcome of one refinement query
type RefineResult struct {
	Explanation string
	Diff        string
	Confidence  float64
}

// Refiner answers targeted fix/improve queries about existing code
type Refiner interface {
	Handle(ctx context.Context, query string) (RefineResult, error)
}

// ConfidenceThreshold is the minimum refinement confidence accepted
// before one bounded re-query with a sharper prompt.
const ConfidenceThreshold = 0.7

// RefineOnError routes an execution failure through the refiner. A
// low-confidence answer earns exactly one sharper re-query; the second
// answer is final either way.
func RefineOnError(ctx context.Context, refiner Refiner, errorTrace, affectedFile string) (RefineResult, error) {
	query := fmt.Sprintf("Fix this bug in %s: %s. Provide a working fix as a diff.", affectedFile, firstLine(errorTrace))
	result, err := refiner.Handle(ctx, query)
	if err != nil {
		return RefineResult{}, fmt.Errorf("refining %s: %w", affectedFile, err)
	}
	if result.Confidence >= ConfidenceThreshold {
		return result, nil
	}

	retryQuery := fmt.Sprintf("Analyze this error: %s. Fix %s with proper error handling.", truncate(errorTrace, 500), affectedFile)
	result, err = refiner.Handle(ctx, retryQuery)
	if err != nil {
		return RefineResult{}, fmt.Errorf("refining %s: %w", affectedFile, err)
	}
	return result, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Template generates placeholder code without a model backend. Output
// depends only on the prompt and language.
type Template struct{}

// NewTemplate creates the fallback generator
func NewTemplate() *Template {
	return &Template{}
}

// Generate returns a minimal runnable scaffold for the language
func (t *Template) Generate(_ context.Context, prompt string, _ map[string]any, language string) (string, error) {
	switch language {
	case "python", "":
		return fmt.Sprintf(`# Generated code for: %s

def main():
    print("Hello, World!")

if __name__ == "__main__":
    main()
`, prompt), nil
	case "javascript":
		return fmt.Sprintf(`// Generated code for: %s

function main() {
    console.log("Hello, World!");
}

main();
`, prompt), nil
	default:
		return fmt.Sprintf("# Generated %s code\n# %s\n", language, prompt), nil
	}
}
