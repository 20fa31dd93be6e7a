package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/admitflow/admitflow/internal/coalesce"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// immediateClock collapses the debounce window to nothing, so feed tests
// only exercise the wiring. The callback runs on its own goroutine —
// the coalescer arms timers while holding its lock.
type immediateClock struct{}

type firedTimer struct{}

func (firedTimer) Stop() bool { return false }

func (immediateClock) AfterFunc(_ time.Duration, f func()) coalesce.Timer {
	go f()
	return firedTimer{}
}

func collectSummaries() (func([]models.ConversationSummary), func() int) {
	var mu sync.Mutex
	count := 0
	return func([]models.ConversationSummary) {
			mu.Lock()
			count++
			mu.Unlock()
		}, func() int {
			mu.Lock()
			defer mu.Unlock()
			return count
		}
}

func TestFeeds_Conversation_Feed_Primes_And_Refreshes_On_Events(t *testing.T) {
	req := require.New(t)

	bus := NewMemoryBus()
	feeds := NewFeeds(bus, NewRegistry(), time.Millisecond, immediateClock{}, zap.NewNop())
	userID := uuid.New()

	onUpdate, updates := collectSummaries()
	lister := func(context.Context) ([]models.ConversationSummary, error) {
		return []models.ConversationSummary{}, nil
	}

	dispose, err := feeds.SubscribeConversations("session-1", userID, lister, onUpdate, nil)
	req.NoError(err)
	defer dispose()

	// The prime fetch delivers without any event
	req.Eventually(func() bool { return updates() >= 1 }, time.Second, 5*time.Millisecond)

	// A change on the user's inbox topic triggers a refresh
	ev, err := NewEvent("conversation.created", nil)
	req.NoError(err)
	req.NoError(bus.Publish(context.Background(), TopicInbox(userID), ev))

	req.Eventually(func() bool { return updates() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestFeeds_Disposed_Feed_Applies_No_Further_Updates(t *testing.T) {
	req := require.New(t)

	bus := NewMemoryBus()
	feeds := NewFeeds(bus, NewRegistry(), time.Millisecond, immediateClock{}, zap.NewNop())
	userID := uuid.New()

	onUpdate, updates := collectSummaries()
	lister := func(context.Context) ([]models.ConversationSummary, error) {
		return []models.ConversationSummary{}, nil
	}

	dispose, err := feeds.SubscribeConversations("session-1", userID, lister, onUpdate, nil)
	req.NoError(err)
	req.Eventually(func() bool { return updates() >= 1 }, time.Second, 5*time.Millisecond)

	dispose()
	before := updates()

	ev, _ := NewEvent("conversation.created", nil)
	req.NoError(bus.Publish(context.Background(), TopicInbox(userID), ev))
	time.Sleep(50 * time.Millisecond)

	req.Equal(before, updates())
}

func TestFeeds_Typing_Feed_Is_Direct_Not_Debounced(t *testing.T) {
	req := require.New(t)

	bus := NewMemoryBus()
	// A clock that never fires: if typing went through the coalescer,
	// no update would ever arrive.
	feeds := NewFeeds(bus, NewRegistry(), time.Hour, frozenClock{}, zap.NewNop())
	conversationID := uuid.New()
	typer := uuid.New()

	var mu sync.Mutex
	var last []uuid.UUID
	deliveries := 0
	onUpdate := func(typers []uuid.UUID) {
		mu.Lock()
		last = typers
		deliveries++
		mu.Unlock()
	}

	fetch := func(context.Context) ([]uuid.UUID, error) {
		return []uuid.UUID{typer}, nil
	}

	dispose, err := feeds.SubscribeTyping("session-1", conversationID, fetch, onUpdate, nil)
	req.NoError(err)
	defer dispose()

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= 1
	}, time.Second, 5*time.Millisecond)

	ev, _ := NewEvent("typing.start", nil)
	req.NoError(bus.Publish(context.Background(), TopicTyping(conversationID), ev))

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= 2 && len(last) == 1 && last[0] == typer
	}, time.Second, 5*time.Millisecond)
}

type frozenClock struct{}

type neverTimer struct{}

func (neverTimer) Stop() bool { return true }

func (frozenClock) AfterFunc(time.Duration, func()) coalesce.Timer {
	return neverTimer{}
}

func TestFeeds_Resubscribe_Replaces_Instead_Of_Stacking(t *testing.T) {
	req := require.New(t)

	bus := NewMemoryBus()
	registry := NewRegistry()
	feeds := NewFeeds(bus, registry, time.Millisecond, immediateClock{}, zap.NewNop())
	userID := uuid.New()

	onUpdate, _ := collectSummaries()
	lister := func(context.Context) ([]models.ConversationSummary, error) {
		return []models.ConversationSummary{}, nil
	}

	_, err := feeds.SubscribeConversations("session-1", userID, lister, onUpdate, nil)
	req.NoError(err)
	_, err = feeds.SubscribeConversations("session-1", userID, lister, onUpdate, nil)
	req.NoError(err)

	req.Equal(1, registry.Count("session-1"))
}
