// Package mission drives missions through their state machine: it
// pulls ready tasks from the plan, gates risky steps behind approval,
// dispatches per-type handlers, persists every transition, and
// publishes lifecycle events.
package mission

import (
	"context"
	"fmt"
	"log"
	"sync"
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
	"forgeline/pkg/telemetry"
	"forgeline/pkg/types"
)

const source = "mission_controller"

// Deps carries every collaborator a controller needs. All of them are
// constructed by the caller and passed in explicitly.
type Deps struct {
	Mission    *types.MissionState
	Plan       *graph.TaskGraph
	Store      *state.Store
	Bus        *events.Bus
	Classifier *policy.Classifier
	Scorer     *policy.Scorer
	Denylist   *policy.Denylist
	Approvals  *approval.Engine
	Consent    *approval.ConsentStore
	Runner     runner.Runner
	Generator  generator.CodeGenerator
	Refiner    generator.Refiner
	Workspaces *workspace.Manager
	Tests      *testrun.Executor
	Config     *config.Config
}

// Controller executes one mission step by step
type Controller struct {
	mu sync.Mutex

	mission    *types.MissionState
	plan       *graph.TaskGraph
	store      *state.Store
	bus        *events.Bus
	classifier *policy.Classifier
	scorer     *policy.Scorer
	denylist   *policy.Denylist
	approvals  *approval.Engine
	consent    *approval.ConsentStore
	run        runner.Runner
	gen        generator.CodeGenerator
	refiner    generator.Refiner
	workspaces *workspace.Manager
	tests      *testrun.Executor
	cfg        *config.Config

	// task id -> approval request id for steps awaiting a decision
	awaiting map[string]string
}

// NewController creates a controller for one mission
func NewController(deps Deps) *Controller {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Load()
	}
	return &Controller{
		mission:    deps.Mission,
		plan:       deps.Plan,
		store:      deps.Store,
		bus:        deps.Bus,
		classifier: deps.Classifier,
		scorer:     deps.Scorer,
		denylist:   deps.Denylist,
		approvals:  deps.Approvals,
		consent:    deps.Consent,
		run:        deps.Runner,
		gen:        deps.Generator,
		refiner:    deps.Refiner,
		workspaces: deps.Workspaces,
		tests:      deps.Tests,
		cfg:        cfg,
		awaiting:   make(map[string]string),
	}
}

// Mission returns the mission state the controller owns
func (c *Controller) Mission() *types.MissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := *c.mission
	return &snapshot
}

// Start moves the mission into executing, persists it, and publishes
// mission.started. Starting a terminal mission is an error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, span := telemetry.StartMissionSpan(ctx, telemetry.SpanMissionStart, c.mission.ID)
	defer span.End()

	if c.mission.Status.Terminal() {
		err := fmt.Errorf("starting mission %s: already %s", c.mission.ID, c.mission.Status)
		telemetry.RecordError(span, err, telemetry.ErrorCategoryUnknown)
		return err
	}

	now := time.Now().UTC()
	c.mission.Status = types.MissionStatusExecuting
	c.mission.StartedAt = &now
	c.mission.TotalSteps = c.plan.Len()
	if err := c.store.SaveMission(c.mission); err != nil {
		telemetry.RecordError(span, err, telemetry.ErrorCategoryDatabase)
		return fmt.Errorf("persisting mission start: %w", err)
	}

	c.publish(events.EventMissionStarted, map[string]any{
		"mission_id":  c.mission.ID,
		"description": c.mission.Description,
	})
	return nil
}

// ExecuteNextStep executes the first ready task in plan order. It
// returns (false, "") when nothing ran: the mission is done, paused
// for approval without progress, or in a terminal state. The driving
// process loops on this until the step id comes back empty.
func (c *Controller) ExecuteNextStep(ctx context.Context) (bool, string) {
	c.mu.Lock()

	if c.mission.Status.Terminal() || c.mission.Status == types.MissionStatusPaused {
		c.mu.Unlock()
		return false, ""
	}

	ready := c.plan.ReadyTasks()
	if len(ready) == 0 {
		if c.plan.Complete() {
			c.finishMission()
		} else if c.plan.Stalled() {
			c.failMission("plan stalled: failed dependencies block remaining tasks")
		}
		c.mu.Unlock()
		return false, ""
	}

	task := ready[0]
	if !c.approvalCleared(ctx, task) {
		c.mu.Unlock()
		return false, task.ID
	}
	c.mu.Unlock()

	return c.runTask(ctx, task), task.ID
}

// ExecuteReadySet dispatches every currently ready task in parallel
// and waits for all of them. One task failing does not cancel its
// siblings; the return value is the number of tasks that succeeded.
func (c *Controller) ExecuteReadySet(ctx context.Context) int {
	c.mu.Lock()

	if c.mission.Status.Terminal() || c.mission.Status == types.MissionStatusPaused {
		c.mu.Unlock()
		return 0
	}

	var cleared []*types.TaskNode
	for _, task := range c.plan.ReadyTasks() {
		if c.approvalCleared(ctx, task) {
			cleared = append(cleared, task)
		}
		if c.mission.Status == types.MissionStatusPaused {
			break
		}
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	results := make([]bool, len(cleared))
	for i, task := range cleared {
		wg.Add(1)
		go func(i int, task *types.TaskNode) {
			defer wg.Done()
			results[i] = c.runTask(ctx, task)
		}(i, task)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	return succeeded
}

// approvalCleared checks the risk gate for a task. A gated task pauses
// the mission and leaves the task ready so a later resume re-dispatches
// it. Caller holds c.mu.
func (c *Controller) approvalCleared(ctx context.Context, task *types.TaskNode) bool {
	classification := c.classifier.Classify(task.Description, nil)
	if classification.Level == types.RiskLow {
		return true
	}

	scope := c.workspaces.Get(c.mission.ID)
	if scope == "" {
		scope = c.mission.ID
	}
	if c.consent.Check(string(task.Type), scope) {
		return true
	}

	if requestID, waiting := c.awaiting[task.ID]; waiting {
		if c.approvals.IsApproved(requestID) {
			delete(c.awaiting, task.ID)
			return true
		}
		if pending := c.approvals.Get(requestID); pending == nil {
			// resolved but not granted
			delete(c.awaiting, task.ID)
			c.failStep(task, &types.StepState{
				StepID:    task.ID,
				MissionID: c.mission.ID,
				Status:    types.StepStatusFailed,
				Type:      task.Type,
			}, fmt.Sprintf("approval denied for step %s", task.ID))
			return false
		}
		return false
	}

	_, span := telemetry.StartMissionSpan(ctx, telemetry.SpanApprovalRequest, c.mission.ID)
	defer span.End()

	request := c.approvals.RequestApproval(
		string(task.Type),
		task.Description,
		classification.Level,
		map[string]any{"mission_id": c.mission.ID, "step_id": task.ID},
	)
	telemetry.SetRiskInfo(span, string(classification.Level), classification.Confidence, true)

	if request.Status.Granted() {
		return true
	}

	c.awaiting[task.ID] = request.ID

	step := &types.StepState{
		StepID:      task.ID,
		MissionID:   c.mission.ID,
		Status:      types.StepStatusApprovalRequired,
		Type:        task.Type,
		Description: task.Description,
	}
	if err := c.store.SaveStep(step); err != nil {
		log.Printf("[mission] persisting approval_required step %s: %v", task.ID, err)
	}

	c.mission.Status = types.MissionStatusPaused
	if err := c.store.SaveMission(c.mission); err != nil {
		log.Printf("[mission] persisting pause: %v", err)
	}

	c.publish(events.EventStepApprovalRequired, map[string]any{
		"mission_id": c.mission.ID,
		"step_id":    task.ID,
		"request_id": request.ID,
		"risk_level": string(classification.Level),
	})
	c.publish(events.EventMissionPaused, map[string]any{"mission_id": c.mission.ID})
	return false
}

// runTask executes one cleared task end to end. The handler itself
// runs without the controller lock so simultaneously-ready tasks can
// proceed in parallel; bookkeeping before and after takes the lock.
func (c *Controller) runTask(ctx context.Context, task *types.TaskNode) bool {
	if err := c.plan.MarkRunning(task.ID); err != nil {
		log.Printf("[mission] marking %s running: %v", task.ID, err)
		return false
	}

	spanCtx, span := telemetry.StartStepSpan(ctx, c.mission.ID, task.ID, string(task.Type))
	defer span.End()

	now := time.Now().UTC()
	step := &types.StepState{
		StepID:      task.ID,
		MissionID:   c.mission.ID,
		Status:      types.StepStatusRunning,
		Type:        task.Type,
		Description: task.Description,
		StartedAt:   &now,
	}
	if err := c.store.SaveStep(step); err != nil {
		log.Printf("[mission] persisting step %s: %v", task.ID, err)
	}

	c.publish(events.EventStepStarted, map[string]any{
		"mission_id": c.mission.ID,
		"step_id":    task.ID,
		"task_type":  string(task.Type),
	})

	outputs, err := c.dispatch(spanCtx, task)
	done := time.Now().UTC()
	step.CompletedAt = &done

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		telemetry.RecordError(span, err, telemetry.ErrorCategoryUnknown)
		c.failStep(task, step, err.Error())
		return false
	}

	step.Status = types.StepStatusCompleted
	step.Outputs = outputs
	c.plan.MarkCompleted(task.ID)
	c.mission.CompletedSteps++
	telemetry.SetStepStatus(span, string(step.Status))

	if err := c.store.SaveStep(step); err != nil {
		log.Printf("[mission] persisting step %s: %v", task.ID, err)
	}
	if err := c.store.SaveMission(c.mission); err != nil {
		log.Printf("[mission] persisting mission: %v", err)
	}

	c.publish(events.EventStepCompleted, map[string]any{
		"mission_id": c.mission.ID,
		"step_id":    task.ID,
	})
	return true
}

// failStep records a step failure and fails the mission. Caller holds
// c.mu.
func (c *Controller) failStep(task *types.TaskNode, step *types.StepState, message string) {
	step.Status = types.StepStatusFailed
	step.Error = message
	c.plan.MarkFailed(task.ID)

	if err := c.store.SaveStep(step); err != nil {
		log.Printf("[mission] persisting failed step %s: %v", task.ID, err)
	}

	c.publish(events.EventStepFailed, map[string]any{
		"mission_id": c.mission.ID,
		"step_id":    task.ID,
		"error":      message,
	})
	c.failMission(message)
}

// failMission moves the mission to failed. Caller holds c.mu.
func (c *Controller) failMission(message string) {
	if c.mission.Status.Terminal() {
		return
	}
	now := time.Now().UTC()
	c.mission.Status = types.MissionStatusFailed
	c.mission.CompletedAt = &now
	c.mission.LastError = message
	if err := c.store.SaveMission(c.mission); err != nil {
		log.Printf("[mission] persisting failure: %v", err)
	}
	c.publish(events.EventMissionFailed, map[string]any{
		"mission_id": c.mission.ID,
		"error":      message,
	})
}

// finishMission moves the mission to completed. Caller holds c.mu.
func (c *Controller) finishMission() {
	now := time.Now().UTC()
	c.mission.Status = types.MissionStatusCompleted
	c.mission.CompletedAt = &now
	if err := c.store.SaveMission(c.mission); err != nil {
		log.Printf("[mission] persisting completion: %v", err)
	}
	c.publish(events.EventMissionCompleted, map[string]any{"mission_id": c.mission.ID})
}

// Pause suspends a running mission
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mission.Status != types.MissionStatusExecuting {
		return fmt.Errorf("pausing mission %s: status is %s", c.mission.ID, c.mission.Status)
	}
	c.mission.Status = types.MissionStatusPaused
	if err := c.store.SaveMission(c.mission); err != nil {
		return fmt.Errorf("persisting pause: %w", err)
	}
	c.publish(events.EventMissionPaused, map[string]any{"mission_id": c.mission.ID})
	return nil
}

// Resume moves a paused mission back to executing. Steps waiting on
// approval are re-dispatched by the next ExecuteNextStep call, which
// re-checks their approval status.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, span := telemetry.StartMissionSpan(ctx, telemetry.SpanMissionResume, c.mission.ID)
	defer span.End()

	if c.mission.Status != types.MissionStatusPaused {
		err := fmt.Errorf("resuming mission %s: status is %s", c.mission.ID, c.mission.Status)
		telemetry.RecordError(span, err, telemetry.ErrorCategoryUnknown)
		return err
	}
	c.mission.Status = types.MissionStatusExecuting
	if err := c.store.SaveMission(c.mission); err != nil {
		return fmt.Errorf("persisting resume: %w", err)
	}
	c.publish(events.EventMissionResumed, map[string]any{"mission_id": c.mission.ID})
	return nil
}

// Cancel marks the mission cancelled. An in-flight runner call is not
// interrupted; it finishes under its own timeout, but no further step
// is dispatched.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, span := telemetry.StartMissionSpan(ctx, telemetry.SpanMissionCancel, c.mission.ID)
	defer span.End()

	if c.mission.Status.Terminal() {
		return fmt.Errorf("cancelling mission %s: already %s", c.mission.ID, c.mission.Status)
	}
	now := time.Now().UTC()
	c.mission.Status = types.MissionStatusCancelled
	c.mission.CompletedAt = &now
	if err := c.store.SaveMission(c.mission); err != nil {
		return fmt.Errorf("persisting cancel: %w", err)
	}
	c.publish(events.EventMissionCancelled, map[string]any{"mission_id": c.mission.ID})
	return nil
}

func (c *Controller) publish(eventType events.EventType, payload map[string]any) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(events.New(eventType, payload, source)); err != nil {
		// bus not running; deliver inline so nothing is lost
		c.bus.PublishSync(events.New(eventType, payload, source))
	}
}
