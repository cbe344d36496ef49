// Package ledger remembers which Telegram updates were already handled so a
// redelivered update is not applied twice.
package ledger

import (
	"context"
	"sync"
	"time"
)

// Ledger records processed update ids for a bounded time.
type Ledger interface {
	Seen(ctx context.Context, updateID int) (bool, error)
	Mark(ctx context.Context, updateID int) error
}

// Memory keeps processed update ids in process memory.
type Memory struct {
	mu   sync.Mutex
	seen map[int]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory creates an in-memory ledger. Entries older than ttl are dropped.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Memory{
		seen: make(map[int]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen reports whether updateID was marked within the ttl.
func (m *Memory) Seen(_ context.Context, updateID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.gc(now)
	_, ok := m.seen[updateID]
	return ok, nil
}

// Mark records updateID as processed.
func (m *Memory) Mark(_ context.Context, updateID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[updateID] = m.now()
	return nil
}

// Len reports the number of remembered ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *Memory) gc(now time.Time) {
	for id, ts := range m.seen {
		if now.Sub(ts) > m.ttl {
			delete(m.seen, id)
		}
	}
}
