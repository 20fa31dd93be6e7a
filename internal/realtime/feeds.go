package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/admitflow/admitflow/internal/coalesce"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Feeds wires bus change notifications to subscriber callbacks. Every
// list-shaped feed goes through a coalescer, so a burst of change events
// while a refetch is in flight collapses to exactly one follow-up fetch.
//
// The fetch functions are injected per subscription — Feeds schedules and
// delivers, the caller decides what "refresh" means. Each callback is
// guarded by a liveness flag: once the disposer runs, no further results
// are applied, even from a fetch already in flight.
type Feeds struct {
	bus      Bus
	registry *Registry
	debounce time.Duration
	clock    coalesce.Clock
	logger   *zap.Logger
}

func NewFeeds(bus Bus, registry *Registry, debounce time.Duration, clock coalesce.Clock, logger *zap.Logger) *Feeds {
	return &Feeds{
		bus:      bus,
		registry: registry,
		debounce: debounce,
		clock:    clock,
		logger:   logger,
	}
}

// ConversationLister fetches the current conversation list for the
// subscribed user.
type ConversationLister func(ctx context.Context) ([]models.ConversationSummary, error)

// SubscribeConversations delivers the user's conversation list on every
// relevant change, coalesced. Returns a disposer; re-subscribing the same
// session replaces the prior subscription.
func (f *Feeds) SubscribeConversations(sessionID string, userID uuid.UUID, list ConversationLister, onUpdate func([]models.ConversationSummary), onError func(error)) (Disposer, error) {
	topic := TopicInbox(userID)
	return f.registry.Replace(sessionID, topic, func() (Disposer, error) {
		var alive atomic.Bool
		alive.Store(true)

		co := coalesce.New(f.debounce, f.clock, func(ctx context.Context) error {
			summaries, err := list(ctx)
			if err != nil {
				return err
			}
			if alive.Load() {
				onUpdate(summaries)
			}
			return nil
		}, func(err error) {
			if alive.Load() && onError != nil {
				onError(err)
			}
		})

		sub, err := f.bus.Subscribe(topic, func(Event) { co.Notify() })
		if err != nil {
			co.Dispose()
			return nil, err
		}

		// Prime the feed: the subscriber wants current data now, not
		// after the first change event.
		go func() {
			summaries, err := list(context.Background())
			if !alive.Load() {
				return
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onUpdate(summaries)
		}()

		return func() {
			alive.Store(false)
			sub.Unsubscribe()
			co.Dispose()
		}, nil
	})
}

// PresenceFetcher returns the current online map for the watched users.
type PresenceFetcher func(ctx context.Context) (map[uuid.UUID]bool, error)

// SubscribePresence delivers the online/offline map for a set of users
// whenever the tenant's presence topic fires, coalesced.
func (f *Feeds) SubscribePresence(sessionID string, tenantID uuid.UUID, fetch PresenceFetcher, onUpdate func(map[uuid.UUID]bool), onError func(error)) (Disposer, error) {
	topic := TopicPresence(tenantID)
	return f.registry.Replace(sessionID, topic, func() (Disposer, error) {
		var alive atomic.Bool
		alive.Store(true)

		co := coalesce.New(f.debounce, f.clock, func(ctx context.Context) error {
			online, err := fetch(ctx)
			if err != nil {
				return err
			}
			if alive.Load() {
				onUpdate(online)
			}
			return nil
		}, func(err error) {
			if alive.Load() && onError != nil {
				onError(err)
			}
		})

		sub, err := f.bus.Subscribe(topic, func(Event) { co.Notify() })
		if err != nil {
			co.Dispose()
			return nil, err
		}

		go func() {
			online, err := fetch(context.Background())
			if !alive.Load() {
				return
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onUpdate(online)
		}()

		return func() {
			alive.Store(false)
			sub.Unsubscribe()
			co.Dispose()
		}, nil
	})
}

// TyperFetcher returns the current typer set for the conversation.
type TyperFetcher func(ctx context.Context) ([]uuid.UUID, error)

// SubscribeTyping delivers the typer set on every typing signal. No
// coalescer here: typing is latency-sensitive and low-volume, and the
// TTL store already bounds staleness.
func (f *Feeds) SubscribeTyping(sessionID string, conversationID uuid.UUID, fetch TyperFetcher, onUpdate func([]uuid.UUID), onError func(error)) (Disposer, error) {
	topic := TopicTyping(conversationID)
	return f.registry.Replace(sessionID, topic, func() (Disposer, error) {
		var alive atomic.Bool
		alive.Store(true)

		deliver := func() {
			typers, err := fetch(context.Background())
			if !alive.Load() {
				return
			}
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onUpdate(typers)
		}

		sub, err := f.bus.Subscribe(topic, func(Event) { deliver() })
		if err != nil {
			return nil, err
		}
		go deliver()

		return func() {
			alive.Store(false)
			sub.Unsubscribe()
		}, nil
	})
}

// DisposeSession tears down every feed the session owns.
func (f *Feeds) DisposeSession(sessionID string) {
	f.registry.DisposeSession(sessionID)
}
