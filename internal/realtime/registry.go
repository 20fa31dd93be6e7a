package realtime

import (
	"fmt"
	"sync"

	"github.com/admitflow/admitflow/internal/models"
)

// Disposer tears down one subscription. Idempotent.
type Disposer func()

// OpenFunc actually opens the underlying subscription (bus topic,
// coalescer, callbacks) and returns its disposer.
type OpenFunc func() (Disposer, error)

type registryEntry struct {
	id      uint64
	dispose Disposer
}

// Registry enforces the shared-resource policy: at most one active
// subscription per (topic, session). A session is one client connection;
// when it goes away, DisposeSession tears down everything it owned, so no
// coalescer or bus binding outlives its owner.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	sessions map[string]map[string]registryEntry // sessionID -> topic -> entry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[string]registryEntry)}
}

// Open registers a new subscription for (session, topic). If one already
// exists it refuses with ErrDuplicateSubscription — the caller forgot to
// dispose, and silently stacking a second would double-deliver every
// event.
func (r *Registry) Open(sessionID, topic string, open OpenFunc) (Disposer, error) {
	r.mu.Lock()
	if _, exists := r.sessions[sessionID][topic]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %s topic %s: %w", sessionID, topic, models.ErrDuplicateSubscription)
	}
	r.mu.Unlock()

	return r.register(sessionID, topic, open)
}

// Replace is Open for callers that legitimately re-subscribe (a client
// re-opening a view): any prior subscription on the pair is torn down
// first, then the new one is registered.
func (r *Registry) Replace(sessionID, topic string, open OpenFunc) (Disposer, error) {
	r.mu.Lock()
	prior, had := r.sessions[sessionID][topic]
	if had {
		delete(r.sessions[sessionID], topic)
	}
	r.mu.Unlock()

	if had {
		prior.dispose()
	}
	return r.register(sessionID, topic, open)
}

func (r *Registry) register(sessionID, topic string, open OpenFunc) (Disposer, error) {
	inner, err := open()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	var once sync.Once
	disposer := Disposer(func() {
		once.Do(func() {
			r.mu.Lock()
			// Only remove the map entry if it is still ours — a Replace
			// racing with this dispose may already have installed a
			// successor that must survive.
			if cur, ok := r.sessions[sessionID][topic]; ok && cur.id == id {
				delete(r.sessions[sessionID], topic)
				if len(r.sessions[sessionID]) == 0 {
					delete(r.sessions, sessionID)
				}
			}
			r.mu.Unlock()
			inner()
		})
	})

	r.mu.Lock()
	if r.sessions[sessionID] == nil {
		r.sessions[sessionID] = make(map[string]registryEntry)
	}
	// A racer may have opened the same pair while our open was in
	// flight; last writer wins after disposing the loser.
	prior, had := r.sessions[sessionID][topic]
	r.sessions[sessionID][topic] = registryEntry{id: id, dispose: disposer}
	r.mu.Unlock()

	if had {
		prior.dispose()
	}
	return disposer, nil
}

// DisposeSession tears down every subscription the session owns.
func (r *Registry) DisposeSession(sessionID string) {
	r.mu.Lock()
	topics := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	disposers := make([]Disposer, 0, len(topics))
	for _, e := range topics {
		disposers = append(disposers, e.dispose)
	}
	r.mu.Unlock()

	for _, d := range disposers {
		d()
	}
}

// Count returns how many subscriptions the session currently holds.
func (r *Registry) Count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID])
}
