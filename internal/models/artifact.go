package models

import "time"

// ArtifactKind classifies a produced output.
type ArtifactKind string

const (
	ArtifactCode   ArtifactKind = "code"
	ArtifactDoc    ArtifactKind = "doc"
	ArtifactReport ArtifactKind = "report"
)

// Artifact is an immutable reference to an output produced by a phase.
type Artifact struct {
	ID        string
	SessionID string
	Kind      ArtifactKind
	Ref       string
	CreatedAt time.Time
}
