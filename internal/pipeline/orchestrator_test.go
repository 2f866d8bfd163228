package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protolab/crew/internal/agents"
	"github.com/protolab/crew/internal/costs"
	"github.com/protolab/crew/internal/llm"
	"github.com/protolab/crew/internal/models"
	"github.com/protolab/crew/internal/policy"
	"github.com/protolab/crew/internal/sessions"
	"github.com/protolab/crew/internal/store"
	"github.com/protolab/crew/internal/tools"
)

// nullProvider serves no tools; agents run text-only.
type nullProvider struct{}

func (nullProvider) ListTools(ctx context.Context, toolkit string, limit int) ([]tools.Descriptor, error) {
	return nil, nil
}
func (nullProvider) Execute(ctx context.Context, d tools.Descriptor, args map[string]any, userID string) (string, error) {
	return "", nil
}
func (nullProvider) Authorize(ctx context.Context, toolName, userID string) (*tools.Authorization, error) {
	return &tools.Authorization{Status: tools.AuthCompleted}, nil
}
func (nullProvider) WaitForAuthorization(ctx context.Context, id string) error { return nil }

// fakeRuntime returns scripted output per agent name and records the
// invocation order and each agent's model.
type fakeRuntime struct {
	outputs map[string]string
	errs    map[string]error
	invoked []string
	models  []string
}

func (r *fakeRuntime) Invoke(ctx context.Context, agent *llm.Agent, input string) (*llm.Result, error) {
	r.invoked = append(r.invoked, agent.Name)
	r.models = append(r.models, agent.Model)
	if err := r.errs[agent.Name]; err != nil {
		return nil, err
	}
	out, ok := r.outputs[agent.Name]
	if !ok {
		out = agent.Name + " finished its phase"
	}
	return &llm.Result{
		FinalOutput: out,
		Usage:       llm.Usage{InputTokens: 100, OutputTokens: 50, ToolCalls: 1},
	}, nil
}

func newTestOrchestrator(t *testing.T, rt llm.Runtime, opts ...Option) (*Orchestrator, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	sm := sessions.NewManager(st)
	approved := func(ctx context.Context, toolName string) bool { return false }
	factory := agents.NewFactory(nullProvider{}, policy.Default(), st, approved, "claude-haiku-4-5", 0)
	return New(st, sm, factory, rt, opts...), st
}

func request(mode Mode) Request {
	return Request{
		Idea:   "A habit tracker for long-distance runners",
		UserID: "user-1",
		Model:  "claude-haiku-4-5",
		Mode:   mode,
	}
}

func TestSequential_HappyPath(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"QA":        "All 42 checks passed",
		"Publisher": "Deployed and healthy at the staging URL",
		"Marketer":  "Launch note: a habit tracker built for runners",
	}}
	o, st := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, GateSummary, res.Gate)
	assert.Equal(t, models.PhaseComplete, res.Phase)
	assert.Equal(t, []string{"Researcher", "Architect", "Coder", "QA", "Publisher", "Marketer"}, rt.invoked)

	ctx := context.Background()
	sess, err := st.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	assert.Equal(t, 900, sess.Costs.TotalTokens(), "6 runs at 150 tokens each")
	assert.Len(t, sess.Transcript, 6)

	runs, err := st.ListRuns(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, runs, 6)
	for _, r := range runs {
		assert.Equal(t, models.RunStatusSucceeded, r.Status)
		assert.NotNil(t, r.EndedAt)
	}

	artifacts, err := st.ListArtifacts(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, artifacts, 3)

	handoffs, err := st.ListHandoffs(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, handoffs, 5, "one handoff per phase transition")
	transitions := make(map[string]string, len(handoffs))
	for _, h := range handoffs {
		transitions[h.From] = h.To
	}
	assert.Equal(t, map[string]string{
		"researcher": "architect",
		"architect":  "coder",
		"coder":      "qa",
		"qa":         "publisher",
		"publisher":  "marketer",
	}, transitions)
}

func TestSequential_QAGateBlocks(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"QA": "3 tests failed: signup flow broken",
	}}
	o, st := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, GateQA, res.Gate)
	assert.Equal(t, models.PhaseQA, res.Phase)
	assert.NotContains(t, rt.invoked, "Publisher")
	assert.NotContains(t, rt.invoked, "Marketer")

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, sess.Status)
}

func TestSequential_DeployGateBlocks(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"QA":        "all green",
		"Publisher": "Deployment is unhealthy, recommend a rollback",
	}}
	o, _ := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, GateDeploy, res.Gate)
	assert.NotContains(t, rt.invoked, "Marketer")
}

func TestSequential_DeployGatePassesOnNegatedRollback(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"QA":        "all green",
		"Publisher": "Deployed cleanly and verified. No rollback needed.",
		"Marketer":  "Launch note drafted for the team",
	}}
	o, _ := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, GateSummary, res.Gate)
	assert.Contains(t, rt.invoked, "Marketer")
}

func TestSequential_SafetyGateBlocks(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"QA":        "all green, success",
		"Publisher": "Deployed and healthy",
		"Marketer":  "Questions? Write to jane.doe@example.com",
	}}
	o, _ := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, GateSafety, res.Gate)
	require.NotEmpty(t, res.Details)
	assert.Contains(t, res.Details[0], "email")
}

func TestSequential_RunFailureFailsSession(t *testing.T) {
	rt := &fakeRuntime{errs: map[string]error{
		"Researcher": errors.New("model overloaded"),
	}}
	o, st := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []string{"Researcher"}, rt.invoked)

	ctx := context.Background()
	sess, err := st.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, sess.Status)

	runs, err := st.ListRuns(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "model overloaded")
}

func TestSequential_BudgetGateBlocks(t *testing.T) {
	rt := &fakeRuntime{}
	o, _ := newTestOrchestrator(t, rt, WithLimits(costs.Limits{
		MaxTokensPerSession:    100,
		MaxCostPerSession:      10,
		MaxToolCallsPerSession: 100,
	}))

	res, err := o.Run(context.Background(), request(ModeSequential))
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, GateBudget, res.Gate)
	assert.Equal(t, []string{"Researcher"}, rt.invoked)
	require.NotEmpty(t, res.Details)
	assert.Contains(t, res.Details[0], "token limit exceeded")
}

func TestSequential_RequestedModelReachesAgents(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"QA":        "All checks passed",
		"Publisher": "Deployed and healthy",
		"Marketer":  "Launch note drafted for the team",
	}}
	o, _ := newTestOrchestrator(t, rt)

	req := request(ModeSequential)
	req.Model = "claude-sonnet-4-5"
	_, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, rt.models, 6)
	for i, m := range rt.models {
		assert.Equal(t, "claude-sonnet-4-5", m, "agent %s", rt.invoked[i])
	}
}

func TestCheckBudget_StoreErrorPropagates(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeRuntime{})

	result := &Result{SessionID: "missing"}
	blocked, err := o.checkBudget(context.Background(), result, "missing")
	require.Error(t, err)
	assert.Nil(t, blocked)
	assert.Contains(t, err.Error(), "budget check")
}

func TestDelegated_HappyPath(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"Orchestrator": "Prototype built and deployed. Team notified.",
	}}
	o, st := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeDelegated))
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, GateSummary, res.Gate)
	assert.Equal(t, []string{"Orchestrator"}, rt.invoked)
	assert.Equal(t, []string{"claude-haiku-4-5"}, rt.models)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)
}

func TestDelegated_BlockedOnApproval(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"Orchestrator": "Stopped: approval required for the repository deletion",
	}}
	o, st := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeDelegated))
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, GateApproval, res.Gate)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, sess.Status)
}

func TestDelegated_SafetyScanBlocks(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"Orchestrator": "Done. Admin password shared with the team.",
	}}
	o, _ := newTestOrchestrator(t, rt)

	res, err := o.Run(context.Background(), request(ModeDelegated))
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, res.Status)
	assert.Equal(t, GateSafety, res.Gate)
}

func TestRun_EmptyIdeaRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeRuntime{})

	_, err := o.Run(context.Background(), Request{Idea: "   ", UserID: "user-1"})
	require.Error(t, err)
}

func TestRun_UnknownModeRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeRuntime{})

	req := request(Mode("parallel"))
	_, err := o.Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline mode")
}

func TestWithInvoker_WrapsInvocations(t *testing.T) {
	rt := &fakeRuntime{outputs: map[string]string{
		"Orchestrator": "All done, everything healthy.",
	}}
	var wrapped int
	inv := func(ctx context.Context, agent *llm.Agent, input string) (*llm.Result, error) {
		wrapped++
		return rt.Invoke(ctx, agent, input)
	}
	o, _ := newTestOrchestrator(t, rt, WithInvoker(inv))

	_, err := o.Run(context.Background(), request(ModeDelegated))
	require.NoError(t, err)
	assert.Equal(t, 1, wrapped)
}
