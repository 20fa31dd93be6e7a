package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SignalStore holds ephemeral TTL-keyed signals (presence heartbeats,
// typing indicators). A signal is (set, member, expiry); reading a set
// prunes expired members first, so consumers never see a stale "still
// typing" or "online" indefinitely — the TTL self-heals after a client
// crash or disconnect.
//
// Two implementations: Redis (production, sorted set with expiry scores)
// and an in-memory map for tests.
type SignalStore interface {
	// Put adds or refreshes member in set with the given expiry.
	Put(ctx context.Context, set string, member uuid.UUID, expiresAt time.Time) error

	// Remove drops member from set immediately (explicit "stopped typing").
	Remove(ctx context.Context, set string, member uuid.UUID) error

	// Active returns members of set whose expiry is after now, pruning the
	// rest as a side effect.
	Active(ctx context.Context, set string, now time.Time) ([]uuid.UUID, error)
}

// MemoryStore is the in-memory SignalStore used by tests (and viable for
// a single-process deployment). Safe for concurrent use.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string]map[uuid.UUID]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string]map[uuid.UUID]time.Time)}
}

func (m *MemoryStore) Put(_ context.Context, set string, member uuid.UUID, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.sets[set]
	if members == nil {
		members = make(map[uuid.UUID]time.Time)
		m.sets[set] = members
	}
	members[member] = expiresAt
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, set string, member uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[set], member)
	return nil
}

func (m *MemoryStore) Active(_ context.Context, set string, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := make([]uuid.UUID, 0)
	for member, expiresAt := range m.sets[set] {
		if expiresAt.After(now) {
			active = append(active, member)
		} else {
			delete(m.sets[set], member)
		}
	}
	return active, nil
}
