package models

import "time"

// AuditEntry is one event in a tool's append-only audit log.
type AuditEntry struct {
	At    time.Time
	Event string
}

// Tool represents an externally provided capability registered with a
// session. Name is unique within a session.
type Tool struct {
	Name   string
	Scopes []string
	Audit  []AuditEntry
}
