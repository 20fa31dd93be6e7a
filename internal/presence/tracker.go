package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tracker derives online/offline status from heartbeat recency. Status is
// computed, never stored: a user is online iff their last heartbeat's
// expiry is still in the future. Missing a few heartbeats (crash, network
// drop) flips them offline with no cleanup required.
type Tracker struct {
	store SignalStore
	ttl   time.Duration
	now   func() time.Time
}

// NewTracker builds a Tracker. now may be nil for time.Now; tests inject
// a fake to step through TTL expiry.
func NewTracker(store SignalStore, ttl time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, ttl: ttl, now: now}
}

func presenceSet(tenantID uuid.UUID) string {
	return "presence:" + tenantID.String()
}

// Heartbeat records one client heartbeat, extending the user's online
// window by the TTL.
func (t *Tracker) Heartbeat(ctx context.Context, tenantID, userID uuid.UUID) error {
	if err := t.store.Put(ctx, presenceSet(tenantID), userID, t.now().Add(t.ttl)); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// Online returns which of the given users are currently online. Users not
// in ids are never reported, so callers can't fish for presence of people
// outside their visibility.
func (t *Tracker) Online(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	active, err := t.store.Active(ctx, presenceSet(tenantID), t.now())
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	activeSet := make(map[uuid.UUID]struct{}, len(active))
	for _, id := range active {
		activeSet[id] = struct{}{}
	}

	online := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		_, ok := activeSet[id]
		online[id] = ok
	}
	return online, nil
}

// IsOnline reports one user's derived status.
func (t *Tracker) IsOnline(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	online, err := t.Online(ctx, tenantID, []uuid.UUID{userID})
	if err != nil {
		return false, err
	}
	return online[userID], nil
}
