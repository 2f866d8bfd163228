package models

import "time"

// RunStatus represents the state of a single agent invocation.
// Transitions only move forward: pending -> running -> succeeded|failed.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// ToolCall records one tool invocation made during a run.
type ToolCall struct {
	Tool   string
	Input  string
	Output string
	Error  string
}

// Run represents one agent invocation within a session.
// TraceID is the owning session's id.
type Run struct {
	ID         string
	Role       string
	Status     RunStatus
	CostTokens int
	TraceID    string
	ToolCalls  []ToolCall
	Error      string
	StartedAt  time.Time
	EndedAt    *time.Time
}
