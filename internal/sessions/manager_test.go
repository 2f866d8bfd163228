package sessions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protolab/crew/internal/models"
	"github.com/protolab/crew/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(store.NewMemoryStore())
}

func TestCreateSession_Defaults(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "runner-habits", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.NotEmpty(t, sess.ProjectID)
	assert.Equal(t, models.PhaseIntake, sess.CurrentPhase)
	assert.Equal(t, models.SessionStatusActive, sess.Status)
	assert.Equal(t, 100000, sess.BudgetTokens)
	assert.Equal(t, 0, sess.Costs.TotalTokens())
}

func TestCreateThenSummary_Zeroes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	summary, err := m.GetSessionSummary(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, "demo", summary.ProjectName)
	assert.Equal(t, 0.0, summary.Cost)
	assert.Equal(t, 0, summary.ArtifactCount)
	assert.Equal(t, 0, summary.TranscriptLength)
	assert.LessOrEqual(t, summary.DurationSeconds, 1)
}

func TestAddTranscriptEntry_AppendOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	require.NoError(t, m.AddTranscriptEntry(ctx, sess.ID, "Researcher", "analyzing market"))
	require.NoError(t, m.AddTranscriptEntry(ctx, sess.ID, "Architect", "designing stack"))

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Transcript, 2)
	assert.Equal(t, "Researcher: analyzing market", got.Transcript[0])
	assert.Equal(t, "Architect: designing stack", got.Transcript[1])
}

func TestUpdateCosts_Monotonic(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	tr, err := m.UpdateCosts(ctx, sess.ID, 2500, 1200, 5)
	require.NoError(t, err)
	assert.Equal(t, 3700, tr.TotalTokens())

	tr, err = m.UpdateCosts(ctx, sess.ID, 1800, 900, 3)
	require.NoError(t, err)
	assert.Equal(t, 6400, tr.TotalTokens())
	assert.Equal(t, 8, tr.ToolCalls)
	assert.True(t, tr.EstimatedCost > 0)
}

func TestAddArtifact_CountedInSummary(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	_, err = m.AddArtifact(ctx, sess.ID, models.ArtifactDoc, "research.md")
	require.NoError(t, err)
	_, err = m.AddArtifact(ctx, sess.ID, models.ArtifactCode, "github.com/demo/repo")
	require.NoError(t, err)

	summary, err := m.GetSessionSummary(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ArtifactCount)
}

func TestRecordHandoff(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	h, err := m.RecordHandoff(ctx, sess.ID, "researcher", "architect", "research phase complete", "brief text")
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)
	assert.Equal(t, "researcher", h.From)
	assert.Equal(t, "architect", h.To)
	assert.False(t, h.CreatedAt.IsZero())
}

func TestRecordHandoff_RejectsSelfHandoff(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	_, err = m.RecordHandoff(ctx, sess.ID, "coder", "coder", "loop", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "itself")
}

func TestRecordHandoff_UnknownSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RecordHandoff(context.Background(), "nope", "qa", "publisher", "", "")
	assert.Error(t, err)
}

func TestUpdateSession_PhaseAndStatus(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	got, err := m.UpdateSession(ctx, sess.ID, models.PhaseQA, "")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseQA, got.CurrentPhase)
	assert.Equal(t, models.SessionStatusActive, got.Status, "status unchanged")

	got, err = m.UpdateSession(ctx, sess.ID, "", models.SessionStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseQA, got.CurrentPhase, "phase unchanged")
	assert.Equal(t, models.SessionStatusFailed, got.Status)
}

func TestCloseSession_RemainsQueryable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, "demo", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)

	require.NoError(t, m.CloseSession(ctx, sess.ID))

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)

	active, err := m.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSessionsByUser(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateSession(ctx, "alpha", "user-1", "claude-haiku-4-5")
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "beta", "user-2", "claude-sonnet-4-5")
	require.NoError(t, err)

	mine, err := m.SessionsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "user-1", mine[0].UserID)
}
