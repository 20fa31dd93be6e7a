package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic naming. One personal topic per user (broadcast fan-out, new
// conversations), one per conversation (messages, typing), one presence
// topic per tenant.

func TopicInbox(userID uuid.UUID) string {
	return "inbox." + userID.String()
}

func TopicConversation(conversationID uuid.UUID) string {
	return "conversation." + conversationID.String()
}

func TopicTyping(conversationID uuid.UUID) string {
	return "typing." + conversationID.String()
}

func TopicPresence(tenantID uuid.UUID) string {
	return "presence." + tenantID.String()
}

// Event is the wire envelope for every bus message: a type tag, the emit
// time, and a type-specific payload.
type Event struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an Event. Data may be nil for pure signals
// (typing ticks, presence changes) where the topic itself carries the
// meaning.
func NewEvent(eventType string, data any) (Event, error) {
	ev := Event{Type: eventType, Time: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("marshal event data: %w", err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// Handler consumes one event from a subscribed topic.
type Handler func(Event)

// Subscription is a live topic subscription; Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Bus is the topic-based publish/subscribe transport the engine rides on.
// The production implementation is AMQP; tests and single-process
// deployments use MemoryBus.
type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(topic string, h Handler) (Subscription, error)
}

// Publisher is the subset services need to emit change notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}

// MemoryBus is an in-process Bus. Handlers run on the publisher's
// goroutine sequentially per topic, which gives tests deterministic
// ordering.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	topics map[string]map[int]Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]map[int]Handler)}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, ev Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.topics[topic]))
	for _, h := range b.topics[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.topics[topic][id] = h

	return &memorySubscription{bus: b, topic: topic, id: id}, nil
}

type memorySubscription struct {
	bus   *MemoryBus
	topic string
	id    int
	once  sync.Once
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.topics[s.topic], s.id)
	})
}
