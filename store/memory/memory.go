// Package memory provides an in-memory store.Store for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/retirement-engine/store"
	"github.com/warp/retirement-engine/tax"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	rules   *store.RuleSetRecord
	tables  map[int]tax.Table
	clients map[string]store.Client
	runs    map[string][]store.ProjectionRun // by client, append order
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		tables:  make(map[int]tax.Table),
		clients: make(map[string]store.Client),
		runs:    make(map[string][]store.ProjectionRun),
	}
}

func (m *Memory) Close() error { return nil }

// Reset drops everything.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = nil
	m.tables = make(map[int]tax.Table)
	m.clients = make(map[string]store.Client)
	m.runs = make(map[string][]store.ProjectionRun)
	return nil
}

// ===== REFERENCE DATA =====

func (m *Memory) LoadRules(_ context.Context) (store.RuleSetRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rules == nil {
		return store.RuleSetRecord{}, store.ErrNotFound
	}
	rec := *m.rules
	rec.Rules = append(rec.Rules[:0:0], m.rules.Rules...)
	return rec, nil
}

func (m *Memory) SaveRules(_ context.Context, rec store.RuleSetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	rec.Rules = append(rec.Rules[:0:0], rec.Rules...)
	m.rules = &rec
	return nil
}

func (m *Memory) DeleteRules(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = nil
	return nil
}

func (m *Memory) LoadTaxTables(_ context.Context) ([]tax.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tax.Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (m *Memory) SaveTaxTable(_ context.Context, t tax.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Brackets = append(t.Brackets[:0:0], t.Brackets...)
	m.tables[t.Year] = t
	return nil
}

// ===== CLIENTS =====

func (m *Memory) SaveClient(_ context.Context, c store.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if prev, ok := m.clients[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) GetClient(_ context.Context, id string) (store.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return store.Client{}, store.ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListClients(_ context.Context) ([]store.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AppendRun records a run. Append-only.
func (m *Memory) AppendRun(_ context.Context, run store.ProjectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[run.ClientID]; !ok {
		return store.ErrNotFound
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.runs[run.ClientID] = append(m.runs[run.ClientID], run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, clientID string) ([]store.ProjectionRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := m.runs[clientID]
	out := make([]store.ProjectionRun, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}
