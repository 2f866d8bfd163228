package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/protolab/crew/internal/costs"
	"github.com/protolab/crew/internal/models"
	"github.com/protolab/crew/internal/store"
)

// defaultBudgetTokens is the per-session token budget.
const defaultBudgetTokens = 100000

// Manager is the session façade the orchestrator and CLI work through.
// All mutators are monotonic: transcripts and artifact lists only grow,
// cost counters only increase.
type Manager struct {
	store store.Store
}

// NewManager creates a sessions manager over the given store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// CreateSession allocates a Project, Session, and zeroed cost tracker.
// The session starts in the intake phase with active status.
func (m *Manager) CreateSession(ctx context.Context, projectName, userID, model string) (*models.Session, error) {
	project := &models.Project{
		Name:         projectName,
		Environments: []string{"staging", "production"},
	}
	if err := m.store.UpsertProject(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:           store.NewID(),
		ProjectID:    project.ID,
		UserID:       userID,
		Model:        model,
		Transcript:   []string{},
		BudgetTokens: defaultBudgetTokens,
		CurrentPhase: models.PhaseIntake,
		Status:       models.SessionStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	session.Costs = costs.New(session.ID, model)

	if err := m.store.UpsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Get returns the session by id.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// UpdateSession sets the session's phase and/or status. Zero values
// leave the corresponding field unchanged.
func (m *Manager) UpdateSession(ctx context.Context, sessionID string, phase models.Phase, status models.SessionStatus) (*models.Session, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if phase != "" {
		session.CurrentPhase = phase
	}
	if status != "" {
		session.Status = status
	}
	session.UpdatedAt = time.Now().UTC()

	if err := m.store.UpsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return session, nil
}

// AddTranscriptEntry appends an "agent: message" line to the transcript.
func (m *Manager) AddTranscriptEntry(ctx context.Context, sessionID, agent, message string) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Transcript = append(session.Transcript, fmt.Sprintf("%s: %s", agent, message))
	session.UpdatedAt = time.Now().UTC()
	return m.store.UpsertSession(ctx, session)
}

// AddArtifact records a produced output reference for the session.
func (m *Manager) AddArtifact(ctx context.Context, sessionID string, kind models.ArtifactKind, ref string) (*models.Artifact, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	artifact := &models.Artifact{
		SessionID: session.ID,
		Kind:      kind,
		Ref:       ref,
	}
	if err := m.store.UpsertArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("add artifact: %w", err)
	}

	session.UpdatedAt = time.Now().UTC()
	_ = m.store.UpsertSession(ctx, session)
	return artifact, nil
}

// RecordHandoff records a delegation of work from one role to another
// within the session. Self-handoffs are rejected.
func (m *Manager) RecordHandoff(ctx context.Context, sessionID, from, to, reason, payload string) (*models.Handoff, error) {
	if from == to {
		return nil, fmt.Errorf("handoff from %s to itself", from)
	}
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	handoff := &models.Handoff{
		ID:        store.NewID(),
		SessionID: sessionID,
		From:      from,
		To:        to,
		Reason:    reason,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.UpsertHandoff(ctx, handoff); err != nil {
		return nil, fmt.Errorf("record handoff: %w", err)
	}
	return handoff, nil
}

// UpdateCosts increments the session's usage counters and returns the
// updated tracker.
func (m *Manager) UpdateCosts(ctx context.Context, sessionID string, inputTokens, outputTokens, toolCalls int) (costs.Tracker, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return costs.Tracker{}, err
	}

	session.Costs = session.Costs.Add(inputTokens, outputTokens, toolCalls)
	session.UpdatedAt = time.Now().UTC()

	if err := m.store.UpsertSession(ctx, session); err != nil {
		return costs.Tracker{}, fmt.Errorf("update costs: %w", err)
	}
	return session.Costs, nil
}

// ActiveSessions returns all sessions with active status.
func (m *Manager) ActiveSessions(ctx context.Context) ([]*models.Session, error) {
	all, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	var active []*models.Session
	for _, s := range all {
		if s.Status == models.SessionStatusActive {
			active = append(active, s)
		}
	}
	return active, nil
}

// SessionsByUser returns all sessions owned by the user.
func (m *Manager) SessionsByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	all, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Session
	for _, s := range all {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

// CloseSession marks the session completed. Closed sessions remain
// queryable; there is no deletion.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	session.Status = models.SessionStatusCompleted
	session.UpdatedAt = time.Now().UTC()
	return m.store.UpsertSession(ctx, session)
}

// Summary holds read-only aggregates for one session.
type Summary struct {
	ID               string  `json:"id"`
	ProjectName      string  `json:"project_name"`
	CurrentPhase     string  `json:"current_phase"`
	Status           string  `json:"status"`
	Cost             float64 `json:"cost"`
	TotalTokens      int     `json:"total_tokens"`
	ToolCalls        int     `json:"tool_calls"`
	ArtifactCount    int     `json:"artifact_count"`
	TranscriptLength int     `json:"transcript_length"`
	DurationSeconds  int     `json:"duration_seconds"`
}

// GetSessionSummary derives the session's aggregates.
func (m *Manager) GetSessionSummary(ctx context.Context, sessionID string) (*Summary, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	projectName := ""
	if p, err := m.store.GetProject(ctx, session.ProjectID); err == nil {
		projectName = p.Name
	}

	artifacts, err := m.store.ListArtifacts(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	return &Summary{
		ID:               session.ID,
		ProjectName:      projectName,
		CurrentPhase:     string(session.CurrentPhase),
		Status:           string(session.Status),
		Cost:             session.Costs.EstimatedCost,
		TotalTokens:      session.Costs.TotalTokens(),
		ToolCalls:        session.Costs.ToolCalls,
		ArtifactCount:    len(artifacts),
		TranscriptLength: len(session.Transcript),
		DurationSeconds:  int(session.UpdatedAt.Sub(session.CreatedAt) / time.Second),
	}, nil
}
