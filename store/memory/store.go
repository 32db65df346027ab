// Package memory provides an in-memory checkpoint store that retains every
// revision of each thread. It is safe for concurrent access and intended
// for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/waypoint"
	"github.com/xraph/waypoint/checkpoint"
	"github.com/xraph/waypoint/id"
	"github.com/xraph/waypoint/store"
)

// Compile-time interface checks.
var (
	_ store.Store             = (*Store)(nil)
	_ checkpoint.HistoryStore = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	latest  map[string]*checkpoint.Checkpoint
	history map[string][]*checkpoint.Checkpoint
	closed  bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		latest:  make(map[string]*checkpoint.Checkpoint),
		history: make(map[string][]*checkpoint.Checkpoint),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return waypoint.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail.
func (m *Store) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// Load returns a copy of the latest checkpoint for threadID.
func (m *Store) Load(_ context.Context, threadID id.ThreadID) (*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, waypoint.ErrStoreClosed
	}
	cp, ok := m.latest[threadID.String()]
	if !ok {
		return nil, waypoint.ErrThreadNotFound
	}
	return cp.Clone(), nil
}

// Save stores a copy of cp if its sequence directly follows the stored one.
func (m *Store) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return waypoint.ErrStoreClosed
	}

	key := cp.ThreadID.String()
	current, exists := m.latest[key]
	switch {
	case !exists && cp.Sequence != 0:
		return fmt.Errorf("%w: thread %s has no checkpoint, got sequence %d",
			waypoint.ErrStaleCheckpoint, key, cp.Sequence)
	case exists && cp.Sequence != current.Sequence+1:
		return fmt.Errorf("%w: thread %s at sequence %d, got %d",
			waypoint.ErrStaleCheckpoint, key, current.Sequence, cp.Sequence)
	}

	stored := cp.Clone()
	m.latest[key] = stored
	m.history[key] = append(m.history[key], stored.Clone())
	return nil
}

// List returns copies of the latest checkpoints, oldest first.
func (m *Store) List(_ context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, waypoint.ErrStoreClosed
	}

	result := make([]*checkpoint.Checkpoint, 0, len(m.latest))
	for _, cp := range m.latest {
		if opts.Status != "" && cp.Status != opts.Status {
			continue
		}
		result = append(result, cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ThreadID.String() < result[j].ThreadID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// History returns every persisted revision of threadID in sequence order.
func (m *Store) History(_ context.Context, threadID id.ThreadID) ([]*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, waypoint.ErrStoreClosed
	}
	revs, ok := m.history[threadID.String()]
	if !ok {
		return nil, waypoint.ErrThreadNotFound
	}
	out := make([]*checkpoint.Checkpoint, len(revs))
	for i, cp := range revs {
		out[i] = cp.Clone()
	}
	return out, nil
}

// applyPagination slices and clones the page selected by offset and limit.
func applyPagination(items []*checkpoint.Checkpoint, offset, limit int) []*checkpoint.Checkpoint {
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]*checkpoint.Checkpoint, len(items))
	for i, cp := range items {
		out[i] = cp.Clone()
	}
	return out
}
