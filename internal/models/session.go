package models

import (
	"time"

	"github.com/protolab/crew/internal/costs"
)

// Phase is a stage of the build pipeline.
type Phase string

const (
	PhaseIntake       Phase = "intake"
	PhaseResearch     Phase = "research"
	PhaseArchitecture Phase = "architecture"
	PhaseBuild        Phase = "build"
	PhaseQA           Phase = "qa"
	PhaseDeploy       Phase = "deploy"
	PhaseMarketing    Phase = "marketing"
	PhaseComplete     Phase = "complete"
)

// SessionStatus represents the state of an orchestration session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session represents one orchestration attempt over a project.
// The transcript is append-only and cost counters only increase.
type Session struct {
	ID           string
	ProjectID    string
	UserID       string
	Model        string
	Transcript   []string
	BudgetTokens int
	Costs        costs.Tracker
	CurrentPhase Phase
	Status       SessionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
