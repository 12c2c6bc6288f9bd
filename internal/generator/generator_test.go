package generator

import (
	"context"
	"strings"
	"testing"
)

type scriptedRefiner struct {
	results []RefineResult
	queries []string
}

func (r *scriptedRefiner) Handle(_ context.Context, query string) (RefineResult, error) {
	r.queries = append(r.queries, query)
	result := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return result, nil
}

func TestRefineOnErrorAcceptsConfidentAnswer(t *testing.T) {
	refiner := &scriptedRefiner{results: []RefineResult{
		{Explanation: "off by one", Diff: "--- a\n+++ b", Confidence: 0.9},
	}}

	result, err := RefineOnError(context.Background(), refiner, "IndexError: list index out of range", "main.py")
	if err != nil {
		t.Fatalf("RefineOnError: %v", err)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
	if len(refiner.queries) != 1 {
		t.Fatalf("got %d queries, want 1", len(refiner.queries))
	}
}

func TestRefineOnErrorRetriesOnceOnLowConfidence(t *testing.T) {
	refiner := &scriptedRefiner{results: []RefineResult{
		{Confidence: 0.4},
		{Confidence: 0.5},
	}}

	result, err := RefineOnError(context.Background(), refiner, "TypeError: bad operand", "main.py")
	if err != nil {
		t.Fatalf("RefineOnError: %v", err)
	}
	if len(refiner.queries) != 2 {
		t.Fatalf("got %d queries, want exactly 2", len(refiner.queries))
	}
	// second answer is final even when still below threshold
	if result.Confidence != 0.5 {
		t.Fatalf("confidence = %v", result.Confidence)
	}
}

func TestTemplateGenerate(t *testing.T) {
	tmpl := NewTemplate()

	py, err := tmpl.Generate(context.Background(), "json formatter", nil, "python")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(py, "def main():") {
		t.Fatalf("python template missing entrypoint:\n%s", py)
	}

	js, err := tmpl.Generate(context.Background(), "json formatter", nil, "javascript")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(js, "function main()") {
		t.Fatalf("javascript template missing entrypoint:\n%s", js)
	}

	again, _ := tmpl.Generate(context.Background(), "json formatter", nil, "python")
	if again != py {
		t.Fatal("template output not deterministic")
	}
}
