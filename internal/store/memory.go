package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/jonathan/tender-radar/internal/types"
)

// Memory is an in-process Store. With a snapshot path it loads on open and
// writes the whole state back on Flush and Close.
type Memory struct {
	mu        sync.RWMutex
	path      string
	tenders   map[string]*types.Tender
	runs      []types.RunLog
	exemplars []types.PositiveExemplar
}

type snapshot struct {
	Tenders   []*types.Tender          `json:"tenders"`
	Runs      []types.RunLog           `json:"runs"`
	Exemplars []types.PositiveExemplar `json:"exemplars"`
}

// NewMemory returns an empty store that is never written to disk.
func NewMemory() *Memory {
	return &Memory{tenders: make(map[string]*types.Tender)}
}

// OpenMemory returns a store backed by a JSON snapshot at path. A missing file
// starts empty.
func OpenMemory(path string) (*Memory, error) {
	m := NewMemory()
	m.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	for _, t := range snap.Tenders {
		m.tenders[t.ID] = t
	}
	m.runs = snap.Runs
	m.exemplars = snap.Exemplars
	return m, nil
}

// UpsertTender implements Store.
func (m *Memory) UpsertTender(_ context.Context, t *types.Tender) (bool, error) {
	if t == nil || t.ID == "" {
		return false, fmt.Errorf("tender id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tenders[t.ID]
	if !ok {
		c := cloneTender(t)
		c.Classification = nil
		m.tenders[t.ID] = c
		return true, nil
	}
	m.tenders[t.ID] = mergeStatic(existing, cloneTender(t))
	return false, nil
}

// SetVerdict implements Store.
func (m *Memory) SetVerdict(_ context.Context, id string, v types.Verdict) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenders[id]
	if !ok {
		return false, fmt.Errorf("tender %s: %w", id, ErrNotFound)
	}
	if !types.ShouldReplace(t.Classification, v) {
		return false, nil
	}
	t.Classification = &v
	return true, nil
}

// GetTender implements Store.
func (m *Memory) GetTender(_ context.Context, id string) (*types.Tender, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenders[id]
	if !ok {
		return nil, fmt.Errorf("tender %s: %w", id, ErrNotFound)
	}
	return cloneTender(t), nil
}

// QueryTenders implements Store. Results are ordered most recently seen first.
func (m *Memory) QueryTenders(_ context.Context, q Query) ([]*types.Tender, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Tender
	for _, t := range m.tenders {
		if q.Matches(t) {
			out = append(out, cloneTender(t))
		}
	}
	slices.SortFunc(out, func(a, b *types.Tender) int {
		if c := b.LastSeenAt.Compare(a.LastSeenAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// RelevantTenders implements Store.
func (m *Memory) RelevantTenders(ctx context.Context, minConfidence float64) ([]*types.Tender, error) {
	return m.QueryTenders(ctx, Query{Relevant: Bool(true), MinConfidence: minConfidence})
}

// AppendRunLog implements Store.
func (m *Memory) AppendRunLog(_ context.Context, log types.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, log)
	return nil
}

// ListRunLogs implements Store. Newest first; an empty source lists all.
func (m *Memory) ListRunLogs(_ context.Context, source string, limit int) ([]types.RunLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.RunLog
	for i := len(m.runs) - 1; i >= 0; i-- {
		if source != "" && m.runs[i].Source != source {
			continue
		}
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListExemplars implements Store.
func (m *Memory) ListExemplars(_ context.Context) ([]types.PositiveExemplar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.exemplars), nil
}

// AddExemplar implements Store.
func (m *Memory) AddExemplar(_ context.Context, e types.PositiveExemplar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.ContainsFunc(m.exemplars, func(x types.PositiveExemplar) bool { return x.ID == e.ID }) {
		return nil
	}
	m.exemplars = append(m.exemplars, e)
	return nil
}

// Flush writes the snapshot when the store has a path.
func (m *Memory) Flush() error {
	if m.path == "" {
		return nil
	}
	m.mu.RLock()
	snap := snapshot{Runs: m.runs, Exemplars: m.exemplars}
	for _, t := range m.tenders {
		snap.Tenders = append(snap.Tenders, t)
	}
	slices.SortFunc(snap.Tenders, func(a, b *types.Tender) int { return cmp.Compare(a.ID, b.ID) })
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot dir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return os.Rename(tmp, m.path)
}

// Close implements Store.
func (m *Memory) Close() error {
	return m.Flush()
}
