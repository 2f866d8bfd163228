package policy

import (
	"context"
	"errors"
	"fmt"
)

// ApprovalRequiredError blocks a single gated tool call that has no
// recorded approval. It does not fail the surrounding pipeline; the
// caller is expected to surface it, obtain approval, and retry.
type ApprovalRequiredError struct {
	Action Action
	Tool   string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("approval required for action %q on tool %q: request approval before retrying", e.Action, e.Tool)
}

// IsApprovalRequired reports whether err is an approval gate rejection.
func IsApprovalRequired(err error) bool {
	var are *ApprovalRequiredError
	return errors.As(err, &are)
}

// ApprovalFunc reports whether a prior approval has been recorded for
// the named tool.
type ApprovalFunc func(ctx context.Context, toolName string) bool

// ExecFunc executes a tool call and returns its textual output.
type ExecFunc func(ctx context.Context, args map[string]any) (string, error)

// Gatekeeper enforces a role's approval gates on tool calls. One
// gatekeeper is built per role at agent-build time and closes over the
// policy table and the host-supplied approval check.
type Gatekeeper struct {
	gated      []Action
	isApproved ApprovalFunc
}

// NewGatekeeper builds a gatekeeper for the role from the table.
func NewGatekeeper(table Table, role Role, isApproved ApprovalFunc) *Gatekeeper {
	return &Gatekeeper{gated: table.Gated(role), isApproved: isApproved}
}

// Check returns an ApprovalRequiredError when the tool name matches a
// gated action kind and no approval is recorded, nil otherwise.
func (g *Gatekeeper) Check(ctx context.Context, toolName string) error {
	for _, action := range g.gated {
		if MatchesAction(toolName, action) && !g.isApproved(ctx, toolName) {
			return &ApprovalRequiredError{Action: action, Tool: toolName}
		}
	}
	return nil
}

// Wrap decorates a tool executor with the gate check. Calls that pass
// the check are delegated unchanged.
func (g *Gatekeeper) Wrap(toolName string, delegate ExecFunc) ExecFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		if err := g.Check(ctx, toolName); err != nil {
			return "", err
		}
		return delegate(ctx, args)
	}
}
