// Package catalog provides read-only metadata records that clients can look
// up by numeric id through the control plane.
package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInvalidEntry is returned when an entry fails validation.
var ErrInvalidEntry = errors.New("invalid catalog entry")

// Entry is one metadata record.
type Entry struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Kind        string `json:"kind" yaml:"kind"`
	Description string `json:"description" yaml:"description"`
}

// Validate checks that the entry has an id and a name.
func (e Entry) Validate() error {
	if e.ID <= 0 {
		return errors.Join(ErrInvalidEntry, errors.New("id must be positive"))
	}
	if e.Name == "" {
		return errors.Join(ErrInvalidEntry, errors.New("name must not be empty"))
	}
	return nil
}

// Lookup retrieves entries by id. Unknown ids are omitted from the result.
type Lookup interface {
	Get(ctx context.Context, ids []int64) ([]Entry, error)
}

// Memory is an in-process Lookup.
// All methods are safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

// NewMemory creates a Memory catalog holding the given entries.
func NewMemory(entries ...Entry) *Memory {
	m := &Memory{entries: make(map[int64]Entry, len(entries))}
	for _, e := range entries {
		m.Put(e)
	}
	return m
}

// Put inserts or replaces an entry.
func (m *Memory) Put(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Get returns the entries for ids in ascending id order.
func (m *Memory) Get(ctx context.Context, ids []int64) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]bool, len(ids))
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := m.entries[id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
