package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role identifies one specialized agent in the pipeline.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleResearcher   Role = "researcher"
	RoleArchitect    Role = "architect"
	RoleCoder        Role = "coder"
	RoleQA           Role = "qa"
	RolePublisher    Role = "publisher"
	RoleMarketer     Role = "marketer"
)

// Roles lists every role in pipeline order, orchestrator first.
func Roles() []Role {
	return []Role{
		RoleOrchestrator,
		RoleResearcher,
		RoleArchitect,
		RoleCoder,
		RoleQA,
		RolePublisher,
		RoleMarketer,
	}
}

// Action is a kind of destructive or outward-facing tool action that a
// role policy may gate behind human approval.
type Action string

const (
	ActionDelete       Action = "delete"
	ActionRollback     Action = "rollback"
	ActionRevoke       Action = "revoke"
	ActionExternalPost Action = "external_post"
)

// ToolPolicy scopes what one role may do: which toolkits it may use and
// which action kinds require recorded approval first.
type ToolPolicy struct {
	Toolkits         []string `yaml:"toolkits"`
	ApprovalRequired []Action `yaml:"approval_required"`
}

// Table maps each role to its tool policy. It is fixed at configuration
// time and never mutated at runtime.
type Table struct {
	Roles map[Role]ToolPolicy `yaml:"roles"`
}

// Default returns the built-in role policy table.
func Default() Table {
	return Table{Roles: map[Role]ToolPolicy{
		RoleOrchestrator: {Toolkits: nil, ApprovalRequired: []Action{ActionDelete, ActionRollback, ActionRevoke, ActionExternalPost}},
		RoleResearcher:   {Toolkits: []string{"google"}, ApprovalRequired: nil},
		RoleArchitect:    {Toolkits: nil, ApprovalRequired: nil},
		RoleCoder:        {Toolkits: []string{"github"}, ApprovalRequired: []Action{ActionDelete, ActionRevoke}},
		RoleQA:           {Toolkits: []string{"github"}, ApprovalRequired: nil},
		RolePublisher:    {Toolkits: []string{"vercel", "render", "fly"}, ApprovalRequired: []Action{ActionRollback, ActionDelete}},
		RoleMarketer:     {Toolkits: []string{"google", "slack"}, ApprovalRequired: []Action{ActionExternalPost}},
	}}
}

// Load reads a role policy table from a YAML file. Roles absent from
// the file keep their built-in defaults.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read policy file: %w", err)
	}

	var loaded Table
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Table{}, fmt.Errorf("parse policy file: %w", err)
	}

	table := Default()
	for role, p := range loaded.Roles {
		if _, known := table.Roles[role]; !known {
			return Table{}, fmt.Errorf("unknown role in policy file: %s", role)
		}
		table.Roles[role] = p
	}
	return table, nil
}

// Toolkits returns the toolkits the role may use. Unknown roles get none.
func (t Table) Toolkits(role Role) []string {
	return t.Roles[role].Toolkits
}

// Gated returns the action kinds requiring approval for the role.
func (t Table) Gated(role Role) []Action {
	return t.Roles[role].ApprovalRequired
}

// MatchesAction reports whether a tool name looks like the given action
// kind. Classification is by substring heuristics; callers wanting
// structured classification should replace this single entry point.
func MatchesAction(toolName string, action Action) bool {
	n := strings.ToLower(toolName)
	switch action {
	case ActionDelete:
		return strings.Contains(n, "delete") || strings.Contains(n, "remove")
	case ActionRollback:
		return strings.Contains(n, "rollback") || strings.Contains(n, "revert")
	case ActionRevoke:
		return strings.Contains(n, "revoke") || strings.Contains(n, "disconnect")
	case ActionExternalPost:
		return strings.Contains(n, "post") || strings.Contains(n, "publish") || strings.Contains(n, "send")
	}
	return false
}
