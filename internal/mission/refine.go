package mission

import (
	"context"
	"fmt"

	"forgeline/internal/generator"
	"forgeline/pkg/telemetry"
)

// ChainStep is one iteration of a refinement chain
type ChainStep struct {
	Step   int
	Query  string
	Result generator.RefineResult
}

// ChainResult is the outcome of a multi-step refinement run
type ChainResult struct {
	Query           string
	Steps           []ChainStep
	FinalConfidence float64
	TestsPassed     bool
	TestsRan        bool
}

// ChainRefine breaks a complex query into up to maxSteps refinement
// iterations. The chain stops early on a high-confidence answer; a
// low-confidence answer sharpens the query for the next iteration.
// Project tests run once after the chain so the caller sees whether
// the workspace still passes.
func (c *Controller) ChainRefine(ctx context.Context, query string, maxSteps int) (ChainResult, error) {
	_, span := telemetry.StartMissionSpan(ctx, telemetry.SpanMissionRefine, c.mission.ID)
	defer span.End()

	if c.refiner == nil {
		return ChainResult{}, fmt.Errorf("mission %s has no refiner configured", c.mission.ID)
	}
	if maxSteps <= 0 {
		maxSteps = 5
	}

	result := ChainResult{Query: query}
	current := query

	for stepNum := 1; stepNum <= maxSteps; stepNum++ {
		prompt := fmt.Sprintf("Step %d of %d: %s", stepNum, maxSteps, current)

		answer, err := c.refiner.Handle(ctx, prompt)
		if err != nil {
			telemetry.RecordError(span, err, telemetry.ErrorCategoryUnknown)
			return result, fmt.Errorf("refinement step %d: %w", stepNum, err)
		}

		result.Steps = append(result.Steps, ChainStep{Step: stepNum, Query: prompt, Result: answer})
		result.FinalConfidence = answer.Confidence

		if answer.Confidence > 0.9 {
			break
		}
		if answer.Confidence < generator.ConfidenceThreshold {
			current = "Refine and improve: " + current
		}
	}

	if dir := c.workspaces.Get(c.mission.ID); dir != "" && c.tests != nil {
		outcome := c.tests.Run(ctx, dir)
		result.TestsRan = outcome.Ran
		result.TestsPassed = outcome.Success
	}
	return result, nil
}
