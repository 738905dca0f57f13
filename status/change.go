package status

import (
	"context"
	"sort"
	"sync"
	"time"
)

type ChangeKind string

const (
	ChangeStatus ChangeKind = "status"
	ChangeLog    ChangeKind = "log"
	ChangeURL    ChangeKind = "url"
)

// Change records one applied mutation. Seq is strictly increasing in the
// order mutations were applied.
type Change struct {
	Seq    uint64     `json:"seq"`
	Step   string     `json:"step"`
	Kind   ChangeKind `json:"kind"`
	Status Status     `json:"status,omitempty"`
	Entry  *LogEntry  `json:"entry,omitempty"`
	URL    string     `json:"url,omitempty"`
	At     time.Time  `json:"at"`
}

// Journal keeps the ordered change history. Since returns the changes with
// Seq > cursor in order; limit <= 0 means no limit.
type Journal interface {
	Append(ctx context.Context, changes ...Change) error
	Since(ctx context.Context, cursor uint64, limit int) ([]Change, error)
}

type MemoryJournal struct {
	mu      sync.RWMutex
	changes []Change
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (m *MemoryJournal) Append(_ context.Context, changes ...Change) error {
	m.mu.Lock()
	m.changes = append(m.changes, changes...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryJournal) Since(_ context.Context, cursor uint64, limit int) ([]Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.changes), func(i int) bool {
		return m.changes[i].Seq > cursor
	})
	rest := m.changes[i:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}

	out := make([]Change, len(rest))
	copy(out, rest)
	return out, nil
}
