package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/protolab/crew/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// It is the durable alternative to MemoryStore behind the same contract.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

// --- Projects ---

func (s *SQLiteStore) UpsertProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, repo_url, environments, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, repo_url=excluded.repo_url, environments=excluded.environments`,
		p.ID, p.Name, p.RepoURL, marshalJSON(p.Environments), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	p := &models.Project{}
	var envs string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, repo_url, environments, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.RepoURL, &envs, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if err := json.Unmarshal([]byte(envs), &p.Environments); err != nil {
		return nil, fmt.Errorf("decode environments: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, repo_url, environments, created_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p := &models.Project{}
		var envs string
		if err := rows.Scan(&p.ID, &p.Name, &p.RepoURL, &envs, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		_ = json.Unmarshal([]byte(envs), &p.Environments)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Sessions ---

func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, user_id, model, transcript, budget_tokens,
			input_tokens, output_tokens, tool_calls, estimated_cost, current_phase, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			transcript=excluded.transcript,
			budget_tokens=excluded.budget_tokens,
			input_tokens=excluded.input_tokens,
			output_tokens=excluded.output_tokens,
			tool_calls=excluded.tool_calls,
			estimated_cost=excluded.estimated_cost,
			current_phase=excluded.current_phase,
			status=excluded.status,
			updated_at=excluded.updated_at`,
		sess.ID, sess.ProjectID, sess.UserID, sess.Model, marshalJSON(sess.Transcript), sess.BudgetTokens,
		sess.Costs.InputTokens, sess.Costs.OutputTokens, sess.Costs.ToolCalls, sess.Costs.EstimatedCost,
		string(sess.CurrentPhase), string(sess.Status), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	sess := &models.Session{}
	var transcript, phase, status string
	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.UserID, &sess.Model, &transcript, &sess.BudgetTokens,
		&sess.Costs.InputTokens, &sess.Costs.OutputTokens, &sess.Costs.ToolCalls, &sess.Costs.EstimatedCost,
		&phase, &status, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(transcript), &sess.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	sess.CurrentPhase = models.Phase(phase)
	sess.Status = models.SessionStatus(status)
	sess.Costs.SessionID = sess.ID
	sess.Costs.Model = sess.Model
	return sess, nil
}

const sessionColumns = `id, project_id, user_id, model, transcript, budget_tokens,
	input_tokens, output_tokens, tool_calls, estimated_cost, current_phase, status, created_at, updated_at`

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// --- Runs ---

func (s *SQLiteStore) UpsertRun(ctx context.Context, r *models.Run) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, role, status, cost_tokens, trace_id, tool_calls, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			cost_tokens=excluded.cost_tokens,
			tool_calls=excluded.tool_calls,
			error=excluded.error,
			ended_at=excluded.ended_at`,
		r.ID, r.Role, string(r.Status), r.CostTokens, r.TraceID, marshalJSON(r.ToolCalls), r.Error, r.StartedAt, r.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanRun(row interface{ Scan(...any) error }) (*models.Run, error) {
	r := &models.Run{}
	var status, toolCalls string
	err := row.Scan(&r.ID, &r.Role, &status, &r.CostTokens, &r.TraceID, &toolCalls, &r.Error, &r.StartedAt, &r.EndedAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.RunStatus(status)
	if err := json.Unmarshal([]byte(toolCalls), &r.ToolCalls); err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, role, status, cost_tokens, trace_id, tool_calls, error, started_at, ended_at FROM runs WHERE id = ?`, id)
	r, err := s.scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, sessionID string) ([]*models.Run, error) {
	query := `SELECT id, role, status, cost_tokens, trace_id, tool_calls, error, started_at, ended_at FROM runs`
	var args []any
	if sessionID != "" {
		query += ` WHERE trace_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		r, err := s.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Artifacts ---

func (s *SQLiteStore) UpsertArtifact(ctx context.Context, a *models.Artifact) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, session_id, kind, ref, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, ref=excluded.ref`,
		a.ID, a.SessionID, string(a.Kind), a.Ref, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, sessionID string) ([]*models.Artifact, error) {
	query := `SELECT id, session_id, kind, ref, created_at FROM artifacts`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		a := &models.Artifact{}
		var kind string
		if err := rows.Scan(&a.ID, &a.SessionID, &kind, &a.Ref, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Kind = models.ArtifactKind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Handoffs ---

func (s *SQLiteStore) UpsertHandoff(ctx context.Context, h *models.Handoff) error {
	if h.From == h.To {
		return fmt.Errorf("handoff from and to roles must differ: %s", h.From)
	}
	if h.ID == "" {
		h.ID = NewID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handoffs (id, session_id, from_role, to_role, reason, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		h.ID, h.SessionID, h.From, h.To, h.Reason, h.Payload, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert handoff: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListHandoffs(ctx context.Context, sessionID string) ([]*models.Handoff, error) {
	query := `SELECT id, session_id, from_role, to_role, reason, payload, created_at FROM handoffs`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list handoffs: %w", err)
	}
	defer rows.Close()

	var out []*models.Handoff
	for rows.Next() {
		h := &models.Handoff{}
		if err := rows.Scan(&h.ID, &h.SessionID, &h.From, &h.To, &h.Reason, &h.Payload, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- Tools ---

func (s *SQLiteStore) UpsertTool(ctx context.Context, t *models.Tool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tools (name, scopes, audit) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET scopes=excluded.scopes, audit=excluded.audit`,
		t.Name, marshalJSON(t.Scopes), marshalJSON(t.Audit),
	)
	if err != nil {
		return fmt.Errorf("upsert tool: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTool(ctx context.Context, name string) (*models.Tool, error) {
	t := &models.Tool{}
	var scopes, audit string
	err := s.db.QueryRowContext(ctx, `SELECT name, scopes, audit FROM tools WHERE name = ?`, name).
		Scan(&t.Name, &scopes, &audit)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get tool: %w", err)
	}
	if err := json.Unmarshal([]byte(scopes), &t.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	if err := json.Unmarshal([]byte(audit), &t.Audit); err != nil {
		return nil, fmt.Errorf("decode audit: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) AppendToolAudit(ctx context.Context, name, event string) error {
	t, err := s.GetTool(ctx, name)
	if err != nil {
		t = &models.Tool{Name: name}
	}
	t.Audit = append(t.Audit, models.AuditEntry{At: time.Now().UTC(), Event: event})
	return s.UpsertTool(ctx, t)
}

// --- Approvals ---

func (s *SQLiteStore) RecordApproval(ctx context.Context, toolName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (tool_name, approved_at) VALUES (?, ?)
		ON CONFLICT(tool_name) DO UPDATE SET approved_at=excluded.approved_at`,
		toolName, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record approval: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsApproved(ctx context.Context, toolName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM approvals WHERE tool_name = ?`, toolName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check approval: %w", err)
	}
	return count > 0, nil
}
