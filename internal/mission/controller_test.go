package mission

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"forgeline/internal/approval"
	"forgeline/internal/config"
	"forgeline/internal/events"
	"forgeline/internal/generator"
	"forgeline/internal/graph"
	"forgeline/internal/policy"
	"forgeline/internal/runner"
	"forgeline/internal/state"
	"forgeline/internal/testrun"
	"forgeline/internal/workspace"
	"forgeline/pkg/types"
)

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, _ string, _ map[string]any, _ string) (string, error) {
	return "def main():\n    print(\"ok\")\n", nil
}

type fakeRefiner struct {
	results []generator.RefineResult
	calls   int
}

func (r *fakeRefiner) Handle(_ context.Context, _ string) (generator.RefineResult, error) {
	r.calls++
	if len(r.results) == 0 {
		return generator.RefineResult{Confidence: 1.0}, nil
	}
	result := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return result, nil
}

// scriptedRunner returns queued results in order, repeating the last
type scriptedRunner struct {
	results []runner.Result
}

func (s *scriptedRunner) Name() string      { return "scripted" }
func (s *scriptedRunner) IsAvailable() bool { return true }

func (s *scriptedRunner) Execute(_ context.Context, _ string, _ runner.Options) runner.Result {
	result := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return result
}

func (s *scriptedRunner) RunPython(_ context.Context, _ string, _ time.Duration) runner.Result {
	return s.Execute(context.Background(), "", runner.Options{})
}

type fixture struct {
	controller *Controller
	bus        *events.Bus
	store      *state.Store
	approvals  *approval.Engine
}

func newFixture(t *testing.T, plan *graph.TaskGraph, testResults []runner.Result, refiner generator.Refiner) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := state.Open(filepath.Join(dir, "forgeline.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bus := events.NewBus()

	consent, err := approval.NewConsentStore(filepath.Join(dir, "consent.json"))
	if err != nil {
		t.Fatalf("NewConsentStore: %v", err)
	}

	workspaces, err := workspace.NewManager(filepath.Join(dir, "workspaces"), bus)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	approvals := approval.NewEngine(approval.Options{AutoApprove: true, Recorder: store})

	mission := &types.MissionState{
		ID:          "m1",
		Status:      types.MissionStatusCreated,
		Description: "summarize a dataset",
		CreatedAt:   time.Now().UTC(),
	}

	if testResults == nil {
		testResults = []runner.Result{{ExitCode: 0, Stdout: "1 passed"}}
	}
	tests := testrun.NewExecutor(
		testrun.Config{Mode: testrun.ModeStrict, Command: "python3 -m pytest"},
		&scriptedRunner{results: testResults},
	)

	controller := NewController(Deps{
		Mission:    mission,
		Plan:       plan,
		Store:      store,
		Bus:        bus,
		Classifier: policy.NewClassifier(),
		Scorer:     policy.NewScorer(),
		Denylist:   policy.NewDenylist(),
		Approvals:  approvals,
		Consent:    consent,
		Runner:     &scriptedRunner{results: []runner.Result{{ExitCode: 0}}},
		Generator:  fakeGenerator{},
		Refiner:    refiner,
		Workspaces: workspaces,
		Tests:      tests,
		Config:     config.Load(),
	})
	return &fixture{controller: controller, bus: bus, store: store, approvals: approvals}
}

func buildPlan(t *testing.T, nodes []types.TaskNode) *graph.TaskGraph {
	t.Helper()
	g := graph.New()
	for i := range nodes {
		g.Add(&nodes[i])
	}
	return g
}

func drive(t *testing.T, c *Controller) {
	t.Helper()
	for i := 0; i < 50; i++ {
		_, stepID := c.ExecuteNextStep(context.Background())
		if stepID == "" {
			return
		}
	}
	t.Fatal("mission did not converge")
}

func standardPlan(t *testing.T) *graph.TaskGraph {
	return buildPlan(t, []types.TaskNode{
		{ID: "scaffold", Description: "Lay out the project skeleton", Type: types.TaskTypeSetup},
		{ID: "implement", Description: "Implement core functionality", Type: types.TaskTypeDevelopment, Dependencies: []string{"scaffold"}},
		{ID: "verify", Description: "Validate the generated project", Type: types.TaskTypeTesting, Dependencies: []string{"implement"}},
	})
}

func TestMissionCompletesEndToEnd(t *testing.T) {
	fx := newFixture(t, standardPlan(t), nil, &fakeRefiner{})

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drive(t, fx.controller)

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusCompleted {
		t.Fatalf("status = %s, last error = %q", mission.Status, mission.LastError)
	}
	if mission.CompletedSteps != mission.TotalSteps || mission.TotalSteps != 3 {
		t.Fatalf("completed %d of %d", mission.CompletedSteps, mission.TotalSteps)
	}
	if mission.CompletedAt == nil {
		t.Fatal("completed mission has no completion time")
	}
}

func TestTestingStepRetriesOnceViaRefiner(t *testing.T) {
	refiner := &fakeRefiner{results: []generator.RefineResult{
		{Explanation: "fixed the bug", Diff: "print(\"fixed\")\n", Confidence: 0.95},
	}}
	// first run fails, rerun after refinement passes
	fx := newFixture(t, standardPlan(t), []runner.Result{
		{ExitCode: 1, Stdout: "1 failed"},
		{ExitCode: 0, Stdout: "1 passed"},
	}, refiner)

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drive(t, fx.controller)

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusCompleted {
		t.Fatalf("status = %s, last error = %q", mission.Status, mission.LastError)
	}
	if mission.CompletedSteps != mission.TotalSteps {
		t.Fatalf("completed %d of %d", mission.CompletedSteps, mission.TotalSteps)
	}
	if refiner.calls != 1 {
		t.Fatalf("refiner called %d times, want 1", refiner.calls)
	}
}

func TestTestingStepFailsAfterBoundedRetry(t *testing.T) {
	refiner := &fakeRefiner{results: []generator.RefineResult{
		{Explanation: "attempted fix", Diff: "print(\"still broken\")\n", Confidence: 0.95},
	}}
	fx := newFixture(t, standardPlan(t), []runner.Result{
		{ExitCode: 1, Stdout: "2 failed"},
	}, refiner)

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drive(t, fx.controller)

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusFailed {
		t.Fatalf("status = %s, want failed", mission.Status)
	}
	if mission.LastError == "" {
		t.Fatal("failed mission retains no error")
	}
	if refiner.calls != 1 {
		t.Fatalf("refiner called %d times, want exactly 1", refiner.calls)
	}
	if mission.CompletedSteps != 2 {
		t.Fatalf("completed steps = %d, want partial count 2", mission.CompletedSteps)
	}
}

func TestHighRiskStepPausesForApproval(t *testing.T) {
	plan := buildPlan(t, []types.TaskNode{
		{ID: "deploy", Description: "Run the shell deployment script", Type: types.TaskTypeDeployment},
	})
	fx := newFixture(t, plan, nil, &fakeRefiner{})

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ok, stepID := fx.controller.ExecuteNextStep(context.Background())
	if ok || stepID != "deploy" {
		t.Fatalf("ExecuteNextStep = %v %q", ok, stepID)
	}

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusPaused {
		t.Fatalf("status = %s, want paused", mission.Status)
	}

	pending := fx.approvals.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d, want 1", len(pending))
	}

	// paused mission makes no progress
	if ok, stepID := fx.controller.ExecuteNextStep(context.Background()); ok || stepID != "" {
		t.Fatalf("paused mission executed step %q", stepID)
	}

	fx.approvals.Approve(pending[0].ID, "operator", "reviewed")
	if err := fx.controller.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	drive(t, fx.controller)

	mission = fx.controller.Mission()
	if mission.Status != types.MissionStatusCompleted {
		t.Fatalf("status = %s, last error = %q", mission.Status, mission.LastError)
	}
}

func TestDeniedApprovalFailsStep(t *testing.T) {
	plan := buildPlan(t, []types.TaskNode{
		{ID: "deploy", Description: "Run the shell deployment script", Type: types.TaskTypeDeployment},
	})
	fx := newFixture(t, plan, nil, &fakeRefiner{})

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fx.controller.ExecuteNextStep(context.Background())

	pending := fx.approvals.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending approvals = %d", len(pending))
	}
	fx.approvals.Deny(pending[0].ID, "operator", "too risky")

	if err := fx.controller.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	fx.controller.ExecuteNextStep(context.Background())

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusFailed {
		t.Fatalf("status = %s, want failed after denial", mission.Status)
	}
}

func TestConsentBypassesApproval(t *testing.T) {
	plan := buildPlan(t, []types.TaskNode{
		{ID: "deploy", Description: "Run the shell deployment script", Type: types.TaskTypeDeployment},
	})
	fx := newFixture(t, plan, nil, &fakeRefiner{})

	// blanket consent for deployment steps
	consentPath := filepath.Join(t.TempDir(), "consent.json")
	consent, err := approval.NewConsentStore(consentPath)
	if err != nil {
		t.Fatalf("NewConsentStore: %v", err)
	}
	if _, err := consent.Grant("deployment", "*", nil, nil); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	fx.controller.consent = consent

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drive(t, fx.controller)

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusCompleted {
		t.Fatalf("status = %s, want completed via standing consent", mission.Status)
	}
	if len(fx.approvals.Pending()) != 0 {
		t.Fatal("consent-covered step still raised an approval request")
	}
}

func TestExecuteReadySetPartialFailure(t *testing.T) {
	plan := buildPlan(t, []types.TaskNode{
		{ID: "docs", Description: "Summarize usage notes", Type: types.TaskTypeDocumentation},
		{ID: "verify", Description: "Validate the generated project", Type: types.TaskTypeTesting},
		{ID: "pack", Description: "Bundle the artifacts", Type: types.TaskTypePackaging},
	})
	// testing step fails both attempts
	fx := newFixture(t, plan, []runner.Result{{ExitCode: 1, Stdout: "1 failed"}}, &fakeRefiner{})

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	succeeded := fx.controller.ExecuteReadySet(context.Background())
	if succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2 despite sibling failure", succeeded)
	}

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusFailed {
		t.Fatalf("status = %s, want failed", mission.Status)
	}
	if mission.CompletedSteps != 2 {
		t.Fatalf("completed steps = %d, want 2", mission.CompletedSteps)
	}
}

func TestCancelPreventsFurtherSteps(t *testing.T) {
	fx := newFixture(t, standardPlan(t), nil, &fakeRefiner{})

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ok, _ := fx.controller.ExecuteNextStep(context.Background()); !ok {
		t.Fatal("first step failed")
	}
	if err := fx.controller.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if ok, stepID := fx.controller.ExecuteNextStep(context.Background()); ok || stepID != "" {
		t.Fatalf("cancelled mission executed step %q", stepID)
	}
	if err := fx.controller.Start(context.Background()); err == nil {
		t.Fatal("cancelled mission restarted")
	}

	mission := fx.controller.Mission()
	if mission.Status != types.MissionStatusCancelled {
		t.Fatalf("status = %s", mission.Status)
	}
}

func TestChainRefineStopsOnHighConfidence(t *testing.T) {
	refiner := &fakeRefiner{results: []generator.RefineResult{
		{Confidence: 0.5},
		{Confidence: 0.95},
	}}
	fx := newFixture(t, standardPlan(t), nil, refiner)

	result, err := fx.controller.ChainRefine(context.Background(), "secure the api with auth", 5)
	if err != nil {
		t.Fatalf("ChainRefine: %v", err)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("steps = %d, want 2 (early stop)", len(result.Steps))
	}
	if result.FinalConfidence != 0.95 {
		t.Fatalf("final confidence = %v", result.FinalConfidence)
	}
}

func TestChainRefineHonorsMaxSteps(t *testing.T) {
	refiner := &fakeRefiner{results: []generator.RefineResult{{Confidence: 0.4}}}
	fx := newFixture(t, standardPlan(t), nil, refiner)

	result, err := fx.controller.ChainRefine(context.Background(), "improve everything", 3)
	if err != nil {
		t.Fatalf("ChainRefine: %v", err)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("steps = %d, want max 3", len(result.Steps))
	}
}

func TestStepEventsPublishedInOrder(t *testing.T) {
	fx := newFixture(t, standardPlan(t), nil, &fakeRefiner{})

	var sequence []events.EventType
	fx.bus.SubscribeAll(func(e events.Event) error {
		sequence = append(sequence, e.Type)
		return nil
	})

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drive(t, fx.controller)

	var startedIdx, completedIdx, missionDoneIdx = -1, -1, -1
	for i, eventType := range sequence {
		switch eventType {
		case events.EventStepStarted:
			if startedIdx == -1 {
				startedIdx = i
			}
		case events.EventStepCompleted:
			if completedIdx == -1 {
				completedIdx = i
			}
		case events.EventMissionCompleted:
			missionDoneIdx = i
		}
	}
	if startedIdx == -1 || completedIdx == -1 || missionDoneIdx == -1 {
		t.Fatalf("lifecycle events missing from %v", sequence)
	}
	if !(startedIdx < completedIdx && completedIdx < missionDoneIdx) {
		t.Fatalf("event order violated: %v", sequence)
	}
}

func TestStepsPersistedForInspection(t *testing.T) {
	fx := newFixture(t, standardPlan(t), nil, &fakeRefiner{})

	if err := fx.controller.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drive(t, fx.controller)

	steps, err := fx.store.LoadSteps("m1")
	if err != nil {
		t.Fatalf("LoadSteps: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("persisted steps = %d, want 3", len(steps))
	}
	for _, step := range steps {
		if step.Status != types.StepStatusCompleted {
			t.Fatalf("step %s status = %s", step.StepID, step.Status)
		}
	}
}
