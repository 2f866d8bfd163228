package agents

import (
	"context"
	"fmt"

	"github.com/protolab/crew/internal/llm"
	"github.com/protolab/crew/internal/models"
	"github.com/protolab/crew/internal/policy"
	"github.com/protolab/crew/internal/store"
	"github.com/protolab/crew/internal/tools"
)

// defaultMaxToolsPerToolkit bounds how many tools one toolkit
// contributes to an agent's tool set.
const defaultMaxToolsPerToolkit = 25

// Handle is a built agent plus the metadata callers need to run it:
// the role it serves, the user its tool calls act as, and any toolkits
// that failed to load while binding tools.
type Handle struct {
	Role          policy.Role
	UserID        string
	Agent         *llm.Agent
	ToolkitErrors map[string]string
}

// Factory builds role-bound agents with policy-gated tools. All
// collaborators are injected; the factory holds no global state.
type Factory struct {
	provider   tools.Provider
	table      policy.Table
	st         store.Store
	isApproved policy.ApprovalFunc
	model      string
	maxTools   int
}

// NewFactory creates an agent factory. maxToolsPerToolkit <= 0 uses the
// default bound.
func NewFactory(provider tools.Provider, table policy.Table, st store.Store, isApproved policy.ApprovalFunc, model string, maxToolsPerToolkit int) *Factory {
	if maxToolsPerToolkit <= 0 {
		maxToolsPerToolkit = defaultMaxToolsPerToolkit
	}
	return &Factory{
		provider:   provider,
		table:      table,
		st:         st,
		isApproved: isApproved,
		model:      model,
		maxTools:   maxToolsPerToolkit,
	}
}

// CreateAgentWithRole builds the agent for a role, binding every tool
// its policy grants. An empty model uses the factory default. A toolkit
// that fails to load is recorded in the handle and skipped; the
// remaining toolkits still bind, so one broken server degrades the
// agent instead of failing the build.
func (f *Factory) CreateAgentWithRole(ctx context.Context, role policy.Role, userID, model string) (*Handle, error) {
	if _, known := f.table.Roles[role]; !known {
		return nil, fmt.Errorf("unknown role: %s", role)
	}
	if model == "" {
		model = f.model
	}

	gk := policy.NewGatekeeper(f.table, role, f.isApproved)
	handle := &Handle{
		Role:          role,
		UserID:        userID,
		ToolkitErrors: make(map[string]string),
	}

	var bound []llm.Tool
	for _, toolkit := range f.table.Toolkits(role) {
		descriptors, err := f.provider.ListTools(ctx, toolkit, f.maxTools)
		if err != nil {
			handle.ToolkitErrors[toolkit] = err.Error()
			continue
		}
		for _, d := range descriptors {
			if err := f.registerTool(ctx, d); err != nil {
				return nil, err
			}
			bound = append(bound, f.bindTool(gk, d, role, userID))
		}
	}

	handle.Agent = &llm.Agent{
		Name:         AgentName(role),
		Instructions: Instructions(role),
		Model:        model,
		Tools:        bound,
	}
	return handle, nil
}

// BuildAll builds a handle per role, in the given order.
func (f *Factory) BuildAll(ctx context.Context, roles []policy.Role, userID, model string) (map[policy.Role]*Handle, error) {
	handles := make(map[policy.Role]*Handle, len(roles))
	for _, role := range roles {
		h, err := f.CreateAgentWithRole(ctx, role, userID, model)
		if err != nil {
			return nil, fmt.Errorf("build agent for role %s: %w", role, err)
		}
		handles[role] = h
	}
	return handles, nil
}

// registerTool records the tool in the store on first sight, keeping
// any audit trail an existing record already carries.
func (f *Factory) registerTool(ctx context.Context, d tools.Descriptor) error {
	if existing, err := f.st.GetTool(ctx, d.Name); err == nil && existing != nil {
		return nil
	}
	t := &models.Tool{Name: d.Name, Scopes: d.Scopes}
	if err := f.st.UpsertTool(ctx, t); err != nil {
		return fmt.Errorf("register tool %s: %w", d.Name, err)
	}
	return nil
}

// bindTool wraps the provider call with the role's approval gate and an
// audit trail entry per execution.
func (f *Factory) bindTool(gk *policy.Gatekeeper, d tools.Descriptor, role policy.Role, userID string) llm.Tool {
	exec := func(ctx context.Context, args map[string]any) (string, error) {
		out, err := f.provider.Execute(ctx, d, args, userID)
		event := fmt.Sprintf("executed by %s", role)
		if err != nil {
			event = fmt.Sprintf("failed for %s: %v", role, err)
		}
		_ = f.st.AppendToolAudit(ctx, d.Name, event)
		return out, err
	}
	return llm.Tool{
		Name:        d.Name,
		Description: d.Description,
		Properties:  d.Properties,
		Required:    d.Required,
		Exec:        gk.Wrap(d.Name, exec),
	}
}
