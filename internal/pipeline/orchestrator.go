package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/protolab/crew/internal/agents"
	"github.com/protolab/crew/internal/costs"
	"github.com/protolab/crew/internal/llm"
	"github.com/protolab/crew/internal/models"
	"github.com/protolab/crew/internal/policy"
	"github.com/protolab/crew/internal/scan"
	"github.com/protolab/crew/internal/sessions"
	"github.com/protolab/crew/internal/store"
)

// Mode selects how the pipeline runs.
type Mode string

const (
	// ModeSequential runs each specialist in order with explicit gates
	// between phases.
	ModeSequential Mode = "sequential"
	// ModeDelegated hands the whole idea to the orchestrator agent and
	// classifies its single report.
	ModeDelegated Mode = "delegated"
)

// Result statuses.
const (
	StatusOK      = "ok"
	StatusBlocked = "blocked"
	StatusFailed  = "failed"
)

// Gates at which a pipeline can stop.
const (
	GateQA       = "QA"
	GateDeploy   = "Deploy"
	GateSafety   = "Safety"
	GateBudget   = "Budget"
	GateApproval = "Approval"
	GateSummary  = "Summary"
)

// Request describes one pipeline run.
type Request struct {
	Idea   string `json:"idea"`
	UserID string `json:"user_id"`
	Model  string `json:"model"`
	Mode   Mode   `json:"mode"`
}

// Result is the outcome of a pipeline run. A blocked result names the
// gate that stopped it; the session stays paused and resumable.
type Result struct {
	SessionID string                 `json:"session_id"`
	Status    string                 `json:"status"`
	Gate      string                 `json:"gate"`
	Phase     models.Phase           `json:"phase"`
	Outputs   map[policy.Role]string `json:"outputs"`
	Details   []string               `json:"details,omitempty"`
	NextSteps []string               `json:"next_steps,omitempty"`
}

// Invoker runs one agent invocation. The default calls the runtime
// directly; hosts wrap it with retry and circuit-breaker layers.
type Invoker func(ctx context.Context, agent *llm.Agent, input string) (*llm.Result, error)

// Orchestrator drives the phase pipeline. Every collaborator is
// injected, so two orchestrators never share hidden state.
type Orchestrator struct {
	st       store.Store
	sessions *sessions.Manager
	factory  *agents.Factory
	invoke   Invoker
	classify Classifier
	limits   costs.Limits
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithInvoker replaces the direct runtime call, letting the host
// compose retries and breakers around agent invocations.
func WithInvoker(inv Invoker) Option {
	return func(o *Orchestrator) { o.invoke = inv }
}

// WithClassifier replaces the keyword gate classifier.
func WithClassifier(c Classifier) Option {
	return func(o *Orchestrator) { o.classify = c }
}

// WithLimits sets the per-session cost limits checked after each phase.
func WithLimits(l costs.Limits) Option {
	return func(o *Orchestrator) { o.limits = l }
}

// New creates an orchestrator over the given collaborators.
func New(st store.Store, sm *sessions.Manager, factory *agents.Factory, runtime llm.Runtime, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		st:       st,
		sessions: sm,
		factory:  factory,
		invoke: func(ctx context.Context, agent *llm.Agent, input string) (*llm.Result, error) {
			return runtime.Invoke(ctx, agent, input)
		},
		classify: KeywordClassifier{},
		limits:   costs.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// step pairs a specialist role with the phase it owns.
type step struct {
	role  policy.Role
	phase models.Phase
}

var sequentialSteps = []step{
	{policy.RoleResearcher, models.PhaseResearch},
	{policy.RoleArchitect, models.PhaseArchitecture},
	{policy.RoleCoder, models.PhaseBuild},
	{policy.RoleQA, models.PhaseQA},
	{policy.RolePublisher, models.PhaseDeploy},
	{policy.RoleMarketer, models.PhaseMarketing},
}

// Run executes the pipeline in the requested mode. Agent-level
// failures and gate stops come back in the Result; the error return is
// reserved for infrastructure faults.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Idea) == "" {
		return nil, fmt.Errorf("idea must not be empty")
	}

	switch req.Mode {
	case ModeDelegated:
		return o.runDelegated(ctx, req)
	case ModeSequential, "":
		return o.runSequential(ctx, req)
	default:
		return nil, fmt.Errorf("unknown pipeline mode: %s", req.Mode)
	}
}

func (o *Orchestrator) runSequential(ctx context.Context, req Request) (*Result, error) {
	session, err := o.sessions.CreateSession(ctx, projectName(req.Idea), req.UserID, req.Model)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SessionID: session.ID,
		Outputs:   make(map[policy.Role]string),
	}

	var prev step
	for _, s := range sequentialSteps {
		if _, err := o.sessions.UpdateSession(ctx, session.ID, s.phase, ""); err != nil {
			return nil, err
		}
		result.Phase = s.phase

		if prev.role != "" {
			_, _ = o.sessions.RecordHandoff(ctx, session.ID, string(prev.role), string(s.role),
				fmt.Sprintf("%s phase complete", prev.phase), result.Outputs[prev.role])
		}

		output, runErr := o.runStep(ctx, session.ID, req.UserID, req.Model, s.role, stepInput(s.role, req.Idea, result.Outputs))
		if runErr != nil {
			return o.fail(ctx, result, s.role, runErr)
		}
		result.Outputs[s.role] = output
		o.recordArtifact(ctx, session.ID, s.role)
		prev = s

		blocked, err := o.checkBudget(ctx, result, session.ID)
		if err != nil {
			return nil, err
		}
		if blocked != nil {
			return blocked, nil
		}

		switch s.role {
		case policy.RoleQA:
			if !o.classify.QAPassed(output) {
				return o.block(ctx, result, GateQA,
					[]string{"QA did not report a passing run"},
					[]string{"review the QA report", "fix the failures and run the pipeline again"})
			}
		case policy.RolePublisher:
			if o.classify.NeedsRollback(output) {
				return o.block(ctx, result, GateDeploy,
					[]string{"deployment reported unhealthy"},
					[]string{"inspect the deployment", "approve a rollback or redeploy"})
			}
		case policy.RoleMarketer:
			if sr := scan.Text(output); !sr.OK {
				return o.block(ctx, result, GateSafety,
					findingDetails(sr),
					[]string{"remove the flagged content before publishing"})
			}
		}
	}

	if _, err := o.sessions.UpdateSession(ctx, session.ID, models.PhaseComplete, ""); err != nil {
		return nil, err
	}
	if err := o.sessions.CloseSession(ctx, session.ID); err != nil {
		return nil, err
	}

	result.Phase = models.PhaseComplete
	result.Status = StatusOK
	result.Gate = GateSummary
	result.NextSteps = []string{"review the produced artifacts", "start a new session for the next iteration"}
	return result, nil
}

func (o *Orchestrator) runDelegated(ctx context.Context, req Request) (*Result, error) {
	session, err := o.sessions.CreateSession(ctx, projectName(req.Idea), req.UserID, req.Model)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SessionID: session.ID,
		Phase:     models.PhaseIntake,
		Outputs:   make(map[policy.Role]string),
	}

	output, runErr := o.runStep(ctx, session.ID, req.UserID, req.Model, policy.RoleOrchestrator,
		fmt.Sprintf("Take this product idea from concept to prototype, delegating as needed:\n\n%s", req.Idea))
	if runErr != nil {
		return o.fail(ctx, result, policy.RoleOrchestrator, runErr)
	}
	result.Outputs[policy.RoleOrchestrator] = output

	blocked, err := o.checkBudget(ctx, result, session.ID)
	if err != nil {
		return nil, err
	}
	if blocked != nil {
		return blocked, nil
	}

	if isBlocked, reason := o.classify.Blocked(output); isBlocked {
		return o.block(ctx, result, GateApproval,
			[]string{fmt.Sprintf("run is waiting on a human: %s", reason)},
			[]string{"grant the pending approval", "resume with another run"})
	}

	if sr := scan.Text(output); !sr.OK {
		return o.block(ctx, result, GateSafety,
			findingDetails(sr),
			[]string{"remove the flagged content before sharing the report"})
	}

	if _, err := o.sessions.UpdateSession(ctx, session.ID, models.PhaseComplete, ""); err != nil {
		return nil, err
	}
	if err := o.sessions.CloseSession(ctx, session.ID); err != nil {
		return nil, err
	}

	result.Phase = models.PhaseComplete
	result.Status = StatusOK
	result.Gate = GateSummary
	return result, nil
}

// runStep records a Run around one agent invocation: pending when
// scheduled, running while invoked, then succeeded or failed with the
// usage and tool calls observed.
func (o *Orchestrator) runStep(ctx context.Context, sessionID, userID, model string, role policy.Role, input string) (string, error) {
	handle, err := o.factory.CreateAgentWithRole(ctx, role, userID, model)
	if err != nil {
		return "", err
	}
	for toolkit, msg := range handle.ToolkitErrors {
		_ = o.sessions.AddTranscriptEntry(ctx, sessionID, "System",
			fmt.Sprintf("toolkit %s unavailable for %s: %s", toolkit, role, msg))
	}

	run := &models.Run{
		ID:        store.NewID(),
		Role:      string(role),
		Status:    models.RunStatusPending,
		TraceID:   sessionID,
		StartedAt: time.Now().UTC(),
	}
	if err := o.st.UpsertRun(ctx, run); err != nil {
		return "", err
	}

	run.Status = models.RunStatusRunning
	if err := o.st.UpsertRun(ctx, run); err != nil {
		return "", err
	}

	res, invokeErr := o.invoke(ctx, handle.Agent, input)

	ended := time.Now().UTC()
	run.EndedAt = &ended
	if invokeErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = invokeErr.Error()
		_ = o.st.UpsertRun(ctx, run)
		return "", invokeErr
	}

	run.Status = models.RunStatusSucceeded
	run.CostTokens = res.Usage.InputTokens + res.Usage.OutputTokens
	for _, tc := range res.ToolCalls {
		run.ToolCalls = append(run.ToolCalls, models.ToolCall{
			Tool:   tc.Name,
			Input:  tc.Input,
			Output: tc.Output,
			Error:  tc.Error,
		})
	}
	if err := o.st.UpsertRun(ctx, run); err != nil {
		return "", err
	}

	if _, err := o.sessions.UpdateCosts(ctx, sessionID, res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.ToolCalls); err != nil {
		return "", err
	}
	if err := o.sessions.AddTranscriptEntry(ctx, sessionID, handle.Agent.Name, res.FinalOutput); err != nil {
		return "", err
	}
	return res.FinalOutput, nil
}

// checkBudget pauses the session when the cost tracker breaches a
// limit. Returns a nil result when the session is within budget; a
// failure to read the session is an infrastructure fault, not a pass.
func (o *Orchestrator) checkBudget(ctx context.Context, result *Result, sessionID string) (*Result, error) {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("budget check for session %s: %w", sessionID, err)
	}
	if ok, violations := session.Costs.CheckLimits(o.limits); !ok {
		blocked, _ := o.block(ctx, result, GateBudget, violations,
			[]string{"raise the session limits or start a fresh session"})
		return blocked, nil
	}
	return nil, nil
}

func (o *Orchestrator) block(ctx context.Context, result *Result, gate string, details, nextSteps []string) (*Result, error) {
	_, _ = o.sessions.UpdateSession(ctx, result.SessionID, "", models.SessionStatusPaused)
	result.Status = StatusBlocked
	result.Gate = gate
	result.Details = details
	result.NextSteps = nextSteps
	return result, nil
}

func (o *Orchestrator) fail(ctx context.Context, result *Result, role policy.Role, cause error) (*Result, error) {
	_, _ = o.sessions.UpdateSession(ctx, result.SessionID, "", models.SessionStatusFailed)
	result.Status = StatusFailed
	result.Details = []string{fmt.Sprintf("%s run failed: %v", role, cause)}
	result.NextSteps = []string{"inspect the run records for the failure", "retry the pipeline"}
	return result, nil
}

// recordArtifact files the step's durable output reference, for the
// roles that produce one.
func (o *Orchestrator) recordArtifact(ctx context.Context, sessionID string, role policy.Role) {
	switch role {
	case policy.RoleResearcher:
		_, _ = o.sessions.AddArtifact(ctx, sessionID, models.ArtifactDoc, "research-brief")
	case policy.RoleCoder:
		_, _ = o.sessions.AddArtifact(ctx, sessionID, models.ArtifactCode, "implementation")
	case policy.RoleQA:
		_, _ = o.sessions.AddArtifact(ctx, sessionID, models.ArtifactReport, "qa-report")
	}
}

// stepInput builds the specialist's prompt from the idea and the
// outputs accumulated so far.
func stepInput(role policy.Role, idea string, outputs map[policy.Role]string) string {
	switch role {
	case policy.RoleResearcher:
		return fmt.Sprintf("Product idea:\n\n%s\n\nProduce a research brief for this idea.", idea)
	case policy.RoleArchitect:
		return fmt.Sprintf("Research brief:\n\n%s\n\nDesign the smallest system that proves the idea and output a build plan.", outputs[policy.RoleResearcher])
	case policy.RoleCoder:
		return fmt.Sprintf("Build plan:\n\n%s\n\nImplement the plan and report what was built.", outputs[policy.RoleArchitect])
	case policy.RoleQA:
		return fmt.Sprintf("Implementation report:\n\n%s\n\nVerify the implementation and report the results.", outputs[policy.RoleCoder])
	case policy.RolePublisher:
		return fmt.Sprintf("Implementation report:\n\n%s\n\nQA report:\n\n%s\n\nDeploy the prototype and report its status.", outputs[policy.RoleCoder], outputs[policy.RoleQA])
	case policy.RoleMarketer:
		return fmt.Sprintf("Product idea:\n\n%s\n\nDeployment report:\n\n%s\n\nDraft the launch note.", idea, outputs[policy.RolePublisher])
	}
	return idea
}

// projectName derives a short project name from the idea.
func projectName(idea string) string {
	name := strings.TrimSpace(idea)
	if i := strings.IndexAny(name, ".\n"); i > 0 {
		name = name[:i]
	}
	if len(name) > 60 {
		name = name[:60]
	}
	return name
}

func findingDetails(r scan.Result) []string {
	details := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		details = append(details, fmt.Sprintf("%s: %s", f.Kind, f.Snippet))
	}
	return details
}
