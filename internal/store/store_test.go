package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protolab/crew/internal/models"
)

// forEachStore runs the test against both implementations of Store.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "crew.db")
		s, err := NewSQLiteStore(dbPath)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(context.Background()))
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "crew.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	assert.NoError(t, s.Migrate(ctx))
}

func TestProjectRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		p := &models.Project{
			Name:         "runner-habits",
			Environments: []string{"staging", "production"},
		}
		require.NoError(t, s.UpsertProject(ctx, p))
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.CreatedAt.IsZero())

		got, err := s.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "runner-habits", got.Name)
		assert.Equal(t, []string{"staging", "production"}, got.Environments)

		list, err := s.ListProjects(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = s.GetProject(ctx, "missing")
		assert.Error(t, err)
	})
}

func TestSessionRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		sess := &models.Session{
			ProjectID:    "proj-1",
			UserID:       "user-1",
			Model:        "claude-haiku-4-5",
			Transcript:   []string{"Researcher: scanning market"},
			BudgetTokens: 100000,
			CurrentPhase: models.PhaseIntake,
			Status:       models.SessionStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, s.UpsertSession(ctx, sess))
		require.NotEmpty(t, sess.ID)

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PhaseIntake, got.CurrentPhase)
		assert.Equal(t, models.SessionStatusActive, got.Status)
		assert.Equal(t, []string{"Researcher: scanning market"}, got.Transcript)
		assert.Equal(t, 100000, got.BudgetTokens)

		// Upsert replaces the whole record.
		got.CurrentPhase = models.PhaseQA
		got.Transcript = append(got.Transcript, "QA: running suite")
		require.NoError(t, s.UpsertSession(ctx, got))

		got2, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PhaseQA, got2.CurrentPhase)
		assert.Len(t, got2.Transcript, 2)
	})
}

func TestRunRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		r := &models.Run{
			Role:    "coder",
			Status:  models.RunStatusPending,
			TraceID: "session-1",
		}
		require.NoError(t, s.UpsertRun(ctx, r))

		r.Status = models.RunStatusRunning
		require.NoError(t, s.UpsertRun(ctx, r))

		ended := time.Now().UTC().Truncate(time.Second)
		r.Status = models.RunStatusSucceeded
		r.CostTokens = 1200
		r.EndedAt = &ended
		r.ToolCalls = []models.ToolCall{{Tool: "create_repository", Input: `{"name":"demo"}`, Output: "ok"}}
		require.NoError(t, s.UpsertRun(ctx, r))

		got, err := s.GetRun(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSucceeded, got.Status)
		assert.Equal(t, 1200, got.CostTokens)
		require.Len(t, got.ToolCalls, 1)
		assert.Equal(t, "create_repository", got.ToolCalls[0].Tool)
		require.NotNil(t, got.EndedAt)

		bySession, err := s.ListRuns(ctx, "session-1")
		require.NoError(t, err)
		assert.Len(t, bySession, 1)

		other, err := s.ListRuns(ctx, "session-2")
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestArtifactsScopedBySession(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.UpsertArtifact(ctx, &models.Artifact{SessionID: "s1", Kind: models.ArtifactDoc, Ref: "research.md"}))
		require.NoError(t, s.UpsertArtifact(ctx, &models.Artifact{SessionID: "s1", Kind: models.ArtifactCode, Ref: "repo"}))
		require.NoError(t, s.UpsertArtifact(ctx, &models.Artifact{SessionID: "s2", Kind: models.ArtifactReport, Ref: "qa.txt"}))

		one, err := s.ListArtifacts(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, one, 2)

		all, err := s.ListArtifacts(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestHandoff_FromMustDifferFromTo(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		err := s.UpsertHandoff(ctx, &models.Handoff{SessionID: "s1", From: "coder", To: "coder"})
		assert.Error(t, err)

		require.NoError(t, s.UpsertHandoff(ctx, &models.Handoff{SessionID: "s1", From: "orchestrator", To: "coder", Reason: "implement"}))
		hs, err := s.ListHandoffs(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, hs, 1)
	})
}

func TestToolAuditAppendOnly(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.UpsertTool(ctx, &models.Tool{Name: "github_create_repo", Scopes: []string{"repo"}}))
		require.NoError(t, s.AppendToolAudit(ctx, "github_create_repo", "discovered"))
		require.NoError(t, s.AppendToolAudit(ctx, "github_create_repo", "executed"))

		got, err := s.GetTool(ctx, "github_create_repo")
		require.NoError(t, err)
		require.Len(t, got.Audit, 2)
		assert.Equal(t, "discovered", got.Audit[0].Event)
		assert.Equal(t, "executed", got.Audit[1].Event)
	})
}

func TestApprovals(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		ok, err := s.IsApproved(ctx, "delete_repository")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.RecordApproval(ctx, "delete_repository"))

		ok, err = s.IsApproved(ctx, "delete_repository")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMemoryStore_ConcurrentUpserts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := &models.Session{
				ID:        fmt.Sprintf("session-%d", i),
				ProjectID: "p",
				Status:    models.SessionStatusActive,
			}
			_ = s.UpsertSession(ctx, sess)
			_, _ = s.ListSessions(ctx)
		}(i)
	}
	wg.Wait()

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 20)
}
