package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-solo/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-solo/internal/entity"
)

type memoryEntry struct {
	snapshot  entity.SessionSnapshot
	expiresAt time.Time
}

type memorySession struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemorySessionRepository keeps snapshots in process memory with the same expiry rules as the
// redis repository.
func NewMemorySessionRepository(ttl time.Duration) SessionRepository {
	return &memorySession{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (that *memorySession) CreateOrUpdate(_ context.Context, snapshot *entity.SessionSnapshot) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry := memoryEntry{snapshot: *snapshot}
	if that.ttl > 0 {
		entry.expiresAt = that.now().Add(that.ttl)
	}
	that.entries[snapshot.ID] = entry

	return nil
}

func (that *memorySession) GetByID(_ context.Context, id string) (*entity.SessionSnapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.lookupLocked(id)
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	snapshot := entry.snapshot
	if snapshot.Outcome != nil {
		outcome := *snapshot.Outcome
		snapshot.Outcome = &outcome
	}

	return &snapshot, nil
}

func (that *memorySession) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.lookupLocked(id); !ok {
		return apperror.ErrSessionNotFound
	}

	delete(that.entries, id)

	return nil
}

func (that *memorySession) lookupLocked(id string) (memoryEntry, bool) {
	entry, ok := that.entries[id]
	if !ok {
		return memoryEntry{}, false
	}

	if !entry.expiresAt.IsZero() && !that.now().Before(entry.expiresAt) {
		delete(that.entries, id)
		return memoryEntry{}, false
	}

	return entry, true
}
