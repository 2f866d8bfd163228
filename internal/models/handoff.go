package models

import "time"

// Handoff records a delegation from one role to another. From and To
// must differ; the record is read-only once created.
type Handoff struct {
	ID        string
	SessionID string
	From      string
	To        string
	Reason    string
	Payload   string
	CreatedAt time.Time
}
