package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"forgeline/internal/approval"
	"forgeline/internal/events"
	"forgeline/internal/generator"
	"forgeline/internal/graph"
	"forgeline/internal/mission"
	"forgeline/internal/planner"
	"forgeline/internal/policy"
	"forgeline/internal/runner"
	"forgeline/internal/scheduler"
	"forgeline/internal/state"
	"forgeline/internal/testrun"
	"forgeline/internal/workspace"
	"forgeline/pkg/types"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Forgeline in the current project",
		Long: `Initialize Forgeline in the current project.

Creates a .forgeline directory holding the SQLite mission database, the
consent file and a plan template. Missions started here persist their
state to this directory and can be inspected with 'forgeline status'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}

			forgeDir := filepath.Join(dir, ".forgeline")
			if _, err := os.Stat(forgeDir); err == nil {
				return fmt.Errorf("already initialized in %s", forgeDir)
			}

			if err := os.MkdirAll(forgeDir, 0755); err != nil {
				return fmt.Errorf("creating .forgeline directory: %w", err)
			}

			store, err := state.Open(filepath.Join(forgeDir, "forgeline.db"))
			if err != nil {
				return fmt.Errorf("creating database: %w", err)
			}
			defer store.Close()

			if _, err := approval.NewConsentStore(filepath.Join(forgeDir, "consent.json")); err != nil {
				return fmt.Errorf("creating consent store: %w", err)
			}

			templatePath := filepath.Join(forgeDir, "plan_template.yaml")
			templateContent := `# Forgeline plan template
# Tasks run in dependency order. Valid types: setup, development,
# testing, packaging, documentation, frontend, backend, database,
# deployment, generic.

goal: "Describe the overall goal here"
tasks:
  - id: scaffold
    description: "Create project structure"
    type: setup
  - id: implement
    description: "Implement core functionality"
    type: development
    dependencies: [scaffold]
  - id: verify
    description: "Validate the implementation"
    type: testing
    dependencies: [implement]
`
			if err := os.WriteFile(templatePath, []byte(templateContent), 0644); err != nil {
				return fmt.Errorf("creating plan template: %w", err)
			}

			fmt.Printf("🔥 Initialized Forgeline in %s\n", forgeDir)
			fmt.Println("\nNext steps:")
			fmt.Println("  forgeline run \"Build a REST API\"")
			fmt.Println("  forgeline run --plan my-plan.yaml")
			fmt.Println("  forgeline status")
			fmt.Println("\n📋 Plan template created: .forgeline/plan_template.yaml")

			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var (
		planFile string
		parallel bool
		yes      bool
		priority int
	)

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Execute a mission to completion",
		Long: `Run a mission to completion.

The goal is decomposed into a task plan (or loaded from --plan) and each
step is executed through the configured runner. Steps classified above
low risk pause the mission for operator approval; answer the prompt or
pre-authorize with 'forgeline consent grant'. Use --yes to approve every
request without prompting.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, store, err := requireProject()
			if err != nil {
				return err
			}
			defer store.Close()

			var goal string
			var plan *graph.TaskGraph
			if planFile != "" {
				loaded, g, err := planner.LoadPlan(planFile)
				if err != nil {
					return fmt.Errorf("loading plan: %w", err)
				}
				goal = loaded.Goal
				plan = g
			} else {
				if len(args) == 0 {
					return fmt.Errorf("a goal argument or --plan file is required")
				}
				goal = args[0]
				plan, err = planner.Decompose(goal)
				if err != nil {
					return fmt.Errorf("decomposing goal: %w", err)
				}
			}

			return executeMission(projectDir, store, goal, plan, parallel, yes, priority)
		},
	}

	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "YAML plan file instead of goal decomposition")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Dispatch independent ready steps concurrently")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Approve every approval request without prompting")
	cmd.Flags().IntVar(&priority, "priority", 0, "Admission priority (higher admits first)")

	return cmd
}

func executeMission(projectDir string, store *state.Store, goal string, plan *graph.TaskGraph, parallel, yes bool, priority int) error {
	missionID := "mission-" + uuid.New().String()[:8]

	bus := events.NewBus()
	bus.Start()
	bus.PublishSync(events.New(events.EventSystemStarted, nil, "cli"))
	defer func() {
		bus.PublishSync(events.New(events.EventSystemStopped, nil, "cli"))
		bus.Stop(2 * time.Second)
	}()

	if cfg.Verbose {
		bus.SubscribeAll(func(e events.Event) error {
			line, err := events.Format(e)
			if err != nil {
				return err
			}
			fmt.Println(string(line))
			return nil
		})
	}

	consent, err := approval.NewConsentStore(filepath.Join(projectDir, ".forgeline", "consent.json"))
	if err != nil {
		return fmt.Errorf("opening consent store: %w", err)
	}

	workspaces, err := workspace.NewManager(filepath.Join(projectDir, cfg.WorkspaceDir), bus)
	if err != nil {
		return fmt.Errorf("opening workspace manager: %w", err)
	}

	approvals := approval.NewEngine(approval.Options{
		AutoApprove: cfg.AutoApproveLowRisk,
		Recorder:    store,
	})

	run := selectRunner(projectDir)
	if !run.IsAvailable() {
		return fmt.Errorf("runner %q is not available on this host", run.Name())
	}

	admission := scheduler.NewAdmission(cfg.MaxCPU, cfg.MaxMemoryMB, cfg.MaxRunnerSlots)
	spec := scheduler.ResourceSpec{CPU: 1, MemoryMB: 256, RunnerSlots: 1}
	admission.Submit(missionID, priority)
	if err := admission.Admit(missionID, spec); err != nil {
		return fmt.Errorf("admission refused: %w", err)
	}
	defer admission.Finish(missionID)

	missionState := &types.MissionState{
		ID:          missionID,
		Status:      types.MissionStatusCreated,
		Description: goal,
		CreatedAt:   time.Now().UTC(),
	}
	bus.PublishSync(events.New(events.EventMissionCreated, map[string]any{
		"mission_id":  missionID,
		"description": goal,
	}, "cli"))
	bus.PublishSync(events.New(events.EventPlanGenerated, map[string]any{
		"mission_id": missionID,
		"tasks":      plan.Len(),
	}, "cli"))

	ctrl := mission.NewController(mission.Deps{
		Mission:    missionState,
		Plan:       plan,
		Store:      store,
		Bus:        bus,
		Classifier: policy.NewClassifier(),
		Scorer:     policy.NewScorer(),
		Denylist:   policy.NewDenylist(),
		Approvals:  approvals,
		Consent:    consent,
		Runner:     run,
		Generator:  generator.NewTemplate(),
		Workspaces: workspaces,
		Tests:      testrun.NewExecutor(testrun.Config{Mode: testrun.ModeLenient, Timeout: cfg.StepTimeout}, run),
		Config:     cfg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n🛑 Interrupt received, cancelling mission...")
		cancel()
		signal.Stop(sigCh)
	}()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("starting mission: %w", err)
	}
	fmt.Printf("🔥 Mission %s: %s (%d steps, runner %s)\n\n", missionID, goal, plan.Len(), run.Name())

	for {
		if ctx.Err() != nil {
			if err := ctrl.Cancel(context.Background()); err != nil {
				return err
			}
			break
		}

		if parallel {
			ctrl.ExecuteReadySet(ctx)
		}
		_, stepID := ctrl.ExecuteNextStep(ctx)

		current := ctrl.Mission()
		if current.Status.Terminal() {
			break
		}

		if current.Status == types.MissionStatusPaused {
			if !resolveApprovals(approvals, yes) {
				fmt.Println("\n⏸  Mission paused. Resume later with the pending request resolved.")
				return printMissionSummary(store, missionID)
			}
			if err := ctrl.Resume(ctx); err != nil {
				return fmt.Errorf("resuming mission: %w", err)
			}
			continue
		}

		if stepID == "" {
			break
		}
	}

	return printMissionSummary(store, missionID)
}

// resolveApprovals prompts the operator for each pending request and
// reports whether every request was resolved.
func resolveApprovals(approvals *approval.Engine, yes bool) bool {
	pending := approvals.Pending()
	if len(pending) == 0 {
		return false
	}

	reader := bufio.NewReader(os.Stdin)
	for _, request := range pending {
		if yes {
			approvals.Approve(request.ID, "operator", "pre-approved via --yes")
			continue
		}

		fmt.Printf("\n⚠️  Approval required [%s risk]\n", request.RiskLevel)
		fmt.Printf("  Operation:   %s\n", request.Operation)
		fmt.Printf("  Description: %s\n", request.Description)
		fmt.Print("\nApprove this step? [y/N] ")

		line, err := reader.ReadString('\n')
		if err != nil {
			approvals.Deny(request.ID, "operator", "no response")
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			approvals.Approve(request.ID, "operator", "approved at prompt")
		} else {
			approvals.Deny(request.ID, "operator", "denied at prompt")
		}
	}
	return true
}

// selectRunner builds the runner named by configuration
func selectRunner(projectDir string) runner.Runner {
	switch cfg.RunnerType {
	case "container":
		return runner.NewContainer(cfg.ContainerImage, cfg.ContainerMemory, cfg.ContainerCPUs)
	case "subsystem":
		return runner.NewSubsystem("")
	default:
		return runner.NewNative(projectDir)
	}
}

func printMissionSummary(store *state.Store, missionID string) error {
	missionState, err := store.LoadMission(missionID)
	if err != nil {
		return fmt.Errorf("loading mission: %w", err)
	}

	icon := "✅"
	switch missionState.Status {
	case types.MissionStatusFailed:
		icon = "❌"
	case types.MissionStatusCancelled:
		icon = "🛑"
	case types.MissionStatusPaused:
		icon = "⏸"
	}

	fmt.Printf("\n%s Mission %s: %s (%d/%d steps)\n", icon, missionID, missionState.Status,
		missionState.CompletedSteps, missionState.TotalSteps)
	if missionState.LastError != "" {
		fmt.Printf("   Error: %s\n", missionState.LastError)
	}

	steps, err := store.LoadSteps(missionID)
	if err != nil {
		return fmt.Errorf("loading steps: %w", err)
	}
	if len(steps) > 0 {
		fmt.Println()
		printStepTable(steps)
	}
	return nil
}

func planCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and manage task plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	command.AddCommand(planShowCmd(), planExportCmd(), planValidateCmd())
	return command
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <goal>",
		Short: "Decompose a goal and print the resulting plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := planner.Decompose(args[0])
			if err != nil {
				return err
			}
			printPlanTable(plan)
			return nil
		},
	}
}

func planExportCmd() *cobra.Command {
	var out string

	command := &cobra.Command{
		Use:   "export <goal>",
		Short: "Decompose a goal and write the plan as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := planner.Decompose(args[0])
			if err != nil {
				return err
			}

			tasks := plan.Tasks()
			file := planner.Plan{Goal: args[0], Tasks: make([]types.TaskNode, 0, len(tasks))}
			for _, task := range tasks {
				file.Tasks = append(file.Tasks, *task)
			}
			if err := planner.SavePlan(out, &file); err != nil {
				return err
			}

			fmt.Printf("✅ Wrote %d tasks to %s\n", len(tasks), out)
			return nil
		},
	}

	command.Flags().StringVarP(&out, "out", "o", "plan.yaml", "Output file")
	return command
}

func planValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a YAML plan for unknown types and cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, plan, err := planner.LoadPlan(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✅ Plan %q is valid (%d tasks)\n", loaded.Goal, plan.Len())
			printPlanTable(plan)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var missionID string

	command := &cobra.Command{
		Use:   "status",
		Short: "Show mission status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := requireProject()
			if err != nil {
				return err
			}
			defer store.Close()

			if missionID != "" {
				return printMissionSummary(store, missionID)
			}

			missions, err := store.ListMissions()
			if err != nil {
				return err
			}
			if len(missions) == 0 {
				fmt.Println("No missions found. Start one with 'forgeline run'.")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Mission", "Status", "Progress", "Created", "Description"})
			for _, m := range missions {
				progress := fmt.Sprintf("%d/%d", m.CompletedSteps, m.TotalSteps)
				tw.AppendRow(table.Row{m.ID, m.Status, progress, m.CreatedAt.Format("2006-01-02 15:04"), m.Description})
			}
			tw.Render()
			return nil
		},
	}

	command.Flags().StringVarP(&missionID, "mission", "m", "", "Show steps for one mission")
	return command
}

func approvalsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "approvals",
		Short: "List recorded approval decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := requireProject()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListApprovals()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No approval decisions recorded")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Request", "Operation", "Risk", "Status", "Resolved By", "Reason"})
			for _, r := range records {
				tw.AppendRow(table.Row{r.ID, r.Operation, r.RiskLevel, r.Status, r.ResolvedBy, r.Reason})
			}
			tw.Render()
			return nil
		},
	}
	return command
}

func consentCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "consent",
		Short: "Manage standing consent grants",
		Long: `Manage standing consent grants.

A consent grant lets an operation type bypass the approval prompt for a
scope. Scope "*" matches every mission.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	command.AddCommand(consentGrantCmd(), consentRevokeCmd(), consentListCmd())
	return command
}

func openConsent() (*approval.ConsentStore, error) {
	dir, err := findProjectDir()
	if err != nil {
		return nil, err
	}
	return approval.NewConsentStore(filepath.Join(dir, ".forgeline", "consent.json"))
}

func consentGrantCmd() *cobra.Command {
	var (
		scope string
		ttl   time.Duration
	)

	command := &cobra.Command{
		Use:   "grant <operation-type>",
		Short: "Grant standing consent for an operation type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			consent, err := openConsent()
			if err != nil {
				return err
			}

			var expiresAt *time.Time
			if ttl > 0 {
				t := time.Now().UTC().Add(ttl)
				expiresAt = &t
			}

			record, err := consent.Grant(args[0], scope, expiresAt, nil)
			if err != nil {
				return err
			}

			fmt.Printf("✅ Granted consent %s for %s (scope %s)\n", record.ID, record.OperationType, record.Scope)
			return nil
		},
	}

	command.Flags().StringVarP(&scope, "scope", "s", "*", "Scope the grant applies to")
	command.Flags().DurationVar(&ttl, "ttl", 0, "Expiry duration (0 = no expiry)")
	return command
}

func consentRevokeCmd() *cobra.Command {
	var scope string

	command := &cobra.Command{
		Use:   "revoke <operation-type>",
		Short: "Revoke a standing consent grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			consent, err := openConsent()
			if err != nil {
				return err
			}
			if err := consent.Revoke(args[0], scope); err != nil {
				return err
			}
			fmt.Printf("🔄 Revoked consent for %s (scope %s)\n", args[0], scope)
			return nil
		},
	}

	command.Flags().StringVarP(&scope, "scope", "s", "*", "Scope of the grant to revoke")
	return command
}

func consentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List consent grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			consent, err := openConsent()
			if err != nil {
				return err
			}

			records := consent.List()
			if len(records) == 0 {
				fmt.Println("No consent grants")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Operation", "Scope", "Granted At", "Expires"})
			for _, r := range records {
				expires := "never"
				if r.ExpiresAt != nil {
					expires = r.ExpiresAt.Format(time.RFC3339)
				}
				tw.AppendRow(table.Row{r.OperationType, r.Scope, r.GrantedAt.Format("2006-01-02 15:04"), expires})
			}
			tw.Render()
			return nil
		},
	}
}

func printPlanTable(plan *graph.TaskGraph) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Task", "Type", "Depends On", "Description"})
	for _, task := range plan.Tasks() {
		tw.AppendRow(table.Row{task.ID, task.Type, strings.Join(task.Dependencies, ", "), task.Description})
	}
	tw.Render()
}

func printStepTable(steps []types.StepState) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Step", "Type", "Status", "Error"})
	for _, step := range steps {
		tw.AppendRow(table.Row{step.StepID, step.Type, step.Status, step.Error})
	}
	tw.Render()
}
