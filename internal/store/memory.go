package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/protolab/crew/internal/models"
)

// MemoryStore is the in-memory reference implementation. Registries are
// guarded by a single RWMutex so concurrent pipeline runs can upsert
// and read without corrupting entries; upserts to the same key are
// last-writer-wins.
type MemoryStore struct {
	mu        sync.RWMutex
	projects  map[string]models.Project
	sessions  map[string]models.Session
	runs      map[string]models.Run
	artifacts map[string]models.Artifact
	handoffs  map[string]models.Handoff
	tools     map[string]models.Tool
	approvals map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:  make(map[string]models.Project),
		sessions:  make(map[string]models.Session),
		runs:      make(map[string]models.Run),
		artifacts: make(map[string]models.Artifact),
		handoffs:  make(map[string]models.Handoff),
		tools:     make(map[string]models.Tool),
		approvals: make(map[string]bool),
	}
}

func (m *MemoryStore) UpsertProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	return &p, nil
}

func (m *MemoryStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertSession(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return &s, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertRun(ctx context.Context, r *models.Run) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return &r, nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, sessionID string) ([]*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Run
	for _, r := range m.runs {
		if sessionID == "" || r.TraceID == sessionID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertArtifact(ctx context.Context, a *models.Artifact) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.ID] = *a
	return nil
}

func (m *MemoryStore) ListArtifacts(ctx context.Context, sessionID string) ([]*models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Artifact
	for _, a := range m.artifacts {
		if sessionID == "" || a.SessionID == sessionID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertHandoff(ctx context.Context, h *models.Handoff) error {
	if h.From == h.To {
		return fmt.Errorf("handoff from and to roles must differ: %s", h.From)
	}
	if h.ID == "" {
		h.ID = NewID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handoffs[h.ID] = *h
	return nil
}

func (m *MemoryStore) ListHandoffs(ctx context.Context, sessionID string) ([]*models.Handoff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Handoff
	for _, h := range m.handoffs {
		if sessionID == "" || h.SessionID == sessionID {
			h := h
			out = append(out, &h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertTool(ctx context.Context, t *models.Tool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[t.Name] = *t
	return nil
}

func (m *MemoryStore) GetTool(ctx context.Context, name string) (*models.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return &t, nil
}

func (m *MemoryStore) AppendToolAudit(ctx context.Context, name, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tools[name]
	if !ok {
		t = models.Tool{Name: name}
	}
	audit := make([]models.AuditEntry, len(t.Audit), len(t.Audit)+1)
	copy(audit, t.Audit)
	t.Audit = append(audit, models.AuditEntry{At: time.Now().UTC(), Event: event})
	m.tools[name] = t
	return nil
}

func (m *MemoryStore) RecordApproval(ctx context.Context, toolName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[toolName] = true
	return nil
}

func (m *MemoryStore) IsApproved(ctx context.Context, toolName string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.approvals[toolName], nil
}

// Migrate is a no-op for the in-memory store.
func (m *MemoryStore) Migrate(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
