package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// manualClock lets tests walk time forward past the TTL without sleeping.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTracker_Heartbeat_Marks_User_Online_Until_TTL_Lapses(t *testing.T) {
	req := require.New(t)
	clock := newManualClock()
	tracker := NewTracker(NewMemoryStore(), 6*time.Second, clock.Now)

	tenantID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	// Given a heartbeat
	req.NoError(tracker.Heartbeat(ctx, tenantID, userID))

	// Then the user is online within the TTL window
	online, err := tracker.IsOnline(ctx, tenantID, userID)
	req.NoError(err)
	req.True(online)

	// When the TTL lapses with no renewal (crashed client)
	clock.Advance(7 * time.Second)

	// Then the user flips offline with no explicit cleanup
	online, err = tracker.IsOnline(ctx, tenantID, userID)
	req.NoError(err)
	req.False(online)
}

func TestSignalStore_Member_Expires_Exactly_At_Its_Expiry(t *testing.T) {
	req := require.New(t)
	store := NewMemoryStore()
	ctx := context.Background()

	member := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := base.Add(6 * time.Second)

	// Given a signal expiring at a known instant
	req.NoError(store.Put(ctx, "presence:t", member, expiry))

	// Then it is active right up to the expiry
	active, err := store.Active(ctx, "presence:t", expiry.Add(-time.Millisecond))
	req.NoError(err)
	req.Contains(active, member)

	// And gone at the expiry itself, not one tick later. Both stores
	// draw the line here: active means expiry strictly after now.
	active, err = store.Active(ctx, "presence:t", expiry)
	req.NoError(err)
	req.NotContains(active, member)
}

func TestTracker_Renewed_Heartbeat_Extends_The_Window(t *testing.T) {
	req := require.New(t)
	clock := newManualClock()
	tracker := NewTracker(NewMemoryStore(), 6*time.Second, clock.Now)

	tenantID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	req.NoError(tracker.Heartbeat(ctx, tenantID, userID))
	clock.Advance(4 * time.Second)
	req.NoError(tracker.Heartbeat(ctx, tenantID, userID))
	clock.Advance(4 * time.Second)

	// 8s since the first beat, but only 4s since the renewal
	online, err := tracker.IsOnline(ctx, tenantID, userID)
	req.NoError(err)
	req.True(online)
}

func TestTracker_Online_Reports_Only_The_Queried_Ids(t *testing.T) {
	req := require.New(t)
	clock := newManualClock()
	tracker := NewTracker(NewMemoryStore(), 6*time.Second, clock.Now)

	tenantID := uuid.New()
	beating := uuid.New()
	silent := uuid.New()
	bystander := uuid.New()
	ctx := context.Background()

	req.NoError(tracker.Heartbeat(ctx, tenantID, beating))
	req.NoError(tracker.Heartbeat(ctx, tenantID, bystander))

	online, err := tracker.Online(ctx, tenantID, []uuid.UUID{beating, silent})
	req.NoError(err)

	// Exactly the queried ids come back; the bystander is not leaked
	req.Len(online, 2)
	req.True(online[beating])
	req.False(online[silent])
	req.NotContains(online, bystander)
}

func TestTracker_Presence_Is_Tenant_Scoped(t *testing.T) {
	req := require.New(t)
	clock := newManualClock()
	store := NewMemoryStore()
	tracker := NewTracker(store, 6*time.Second, clock.Now)

	tenantA := uuid.New()
	tenantB := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	// Given a heartbeat under tenant A
	req.NoError(tracker.Heartbeat(ctx, tenantA, userID))

	// Then tenant B sees the same user as offline
	online, err := tracker.IsOnline(ctx, tenantB, userID)
	req.NoError(err)
	req.False(online)
}

func TestTyping_Signal_Expires_Or_Stops_Explicitly(t *testing.T) {
	req := require.New(t)
	clock := newManualClock()
	typing := NewTypingCoordinator(NewMemoryStore(), 4*time.Second, clock.Now)

	conversationID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	ctx := context.Background()

	// Given two people typing
	req.NoError(typing.Start(ctx, conversationID, alice))
	req.NoError(typing.Start(ctx, conversationID, bob))

	typers, err := typing.Typers(ctx, conversationID)
	req.NoError(err)
	req.ElementsMatch([]uuid.UUID{alice, bob}, typers)

	// When alice stops explicitly (message sent)
	req.NoError(typing.Stop(ctx, conversationID, alice))

	typers, err = typing.Typers(ctx, conversationID)
	req.NoError(err)
	req.Equal([]uuid.UUID{bob}, typers)

	// And bob's client crashes — the TTL clears him without a Stop
	clock.Advance(5 * time.Second)
	typers, err = typing.Typers(ctx, conversationID)
	req.NoError(err)
	req.Empty(typers)
}

func TestTyping_Renewal_Keeps_The_Signal_Alive(t *testing.T) {
	req := require.New(t)
	clock := newManualClock()
	typing := NewTypingCoordinator(NewMemoryStore(), 4*time.Second, clock.Now)

	conversationID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	req.NoError(typing.Start(ctx, conversationID, userID))
	clock.Advance(3 * time.Second)
	req.NoError(typing.Start(ctx, conversationID, userID)) // keystroke renews
	clock.Advance(3 * time.Second)

	typers, err := typing.Typers(ctx, conversationID)
	req.NoError(err)
	req.Equal([]uuid.UUID{userID}, typers)
}

func TestTyping_Is_Scoped_Per_Conversation(t *testing.T) {
	req := require.New(t)
	clock := newManualClock()
	typing := NewTypingCoordinator(NewMemoryStore(), 4*time.Second, clock.Now)

	convA := uuid.New()
	convB := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	req.NoError(typing.Start(ctx, convA, userID))

	typers, err := typing.Typers(ctx, convB)
	req.NoError(err)
	req.Empty(typers)
}
