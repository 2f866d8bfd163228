package llm

import "context"

// Tool is a callable capability bound to an agent. Exec runs the tool
// and returns its textual output; the executor is expected to already
// carry any policy gating.
type Tool struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
	Exec        func(ctx context.Context, args map[string]any) (string, error)
}

// Agent is a role-bound, instruction-bound invocation unit.
type Agent struct {
	Name         string
	Instructions string
	Model        string
	Tools        []Tool
}

// Usage holds token and tool-call counts for one invocation.
type Usage struct {
	InputTokens  int
	OutputTokens int
	ToolCalls    int
}

// ToolCallRecord captures one tool invocation made during Invoke.
type ToolCallRecord struct {
	Name   string
	Input  string
	Output string
	Error  string
}

// Result is the outcome of one agent invocation.
type Result struct {
	FinalOutput string
	Usage       Usage
	ToolCalls   []ToolCallRecord
}

// Runtime invokes agents. Implementations are expected to be safe for
// concurrent use by independent sessions.
type Runtime interface {
	Invoke(ctx context.Context, agent *Agent, input string) (*Result, error)
}
