package store

import (
	"context"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/protolab/crew/internal/models"
)

// Store defines the persistence surface for crew. Registries are
// independent: an upsert replaces-or-inserts a whole record by key with
// no cross-registry transactionality. Callers keep related records
// consistent (write the Session before Runs that reference it) and
// funnel all writes for one session through one logical owner.
type Store interface {
	// Projects
	UpsertProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)

	// Sessions
	UpsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)

	// Runs
	UpsertRun(ctx context.Context, r *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, sessionID string) ([]*models.Run, error)

	// Artifacts
	UpsertArtifact(ctx context.Context, a *models.Artifact) error
	ListArtifacts(ctx context.Context, sessionID string) ([]*models.Artifact, error)

	// Handoffs
	UpsertHandoff(ctx context.Context, h *models.Handoff) error
	ListHandoffs(ctx context.Context, sessionID string) ([]*models.Handoff, error)

	// Tools (keyed by name)
	UpsertTool(ctx context.Context, t *models.Tool) error
	GetTool(ctx context.Context, name string) (*models.Tool, error)
	AppendToolAudit(ctx context.Context, name, event string) error

	// Approvals (recorded human authorizations for gated tools)
	RecordApproval(ctx context.Context, toolName string) error
	IsApproved(ctx context.Context, toolName string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// NewID generates a new ULID string.
func NewID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}
