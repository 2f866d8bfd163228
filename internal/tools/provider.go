package tools

import (
	"context"
	"errors"
	"fmt"
)

// Descriptor describes one externally provided tool.
type Descriptor struct {
	Name        string
	Description string
	Toolkit     string
	Properties  map[string]any
	Required    []string
	Scopes      []string
}

// AuthStatus is the state of a tool authorization request.
type AuthStatus string

const (
	AuthPending   AuthStatus = "pending"
	AuthCompleted AuthStatus = "completed"
)

// Authorization is the result of requesting user consent for a tool.
type Authorization struct {
	ID     string
	URL    string
	Status AuthStatus
}

// AuthorizationPendingError signals that a tool needs user consent
// before it can execute. It is a suspend-and-resume signal, not a
// failure: surface the URL, wait for completion, then retry.
type AuthorizationPendingError struct {
	Tool string
	URL  string
}

func (e *AuthorizationPendingError) Error() string {
	return fmt.Sprintf("authorization pending for tool %q: complete consent at %s before retrying", e.Tool, e.URL)
}

// IsAuthorizationPending reports whether err is a consent suspension.
func IsAuthorizationPending(err error) bool {
	var ape *AuthorizationPendingError
	return errors.As(err, &ape)
}

// Provider is the external tool-execution collaborator: it lists the
// tools available in a toolkit, executes calls, and resolves user
// consent for tools that require it.
type Provider interface {
	ListTools(ctx context.Context, toolkit string, limit int) ([]Descriptor, error)
	Execute(ctx context.Context, d Descriptor, args map[string]any, userID string) (string, error)
	Authorize(ctx context.Context, toolName, userID string) (*Authorization, error)
	WaitForAuthorization(ctx context.Context, id string) error
}
