package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_Delivers_Only_To_The_Published_Topic(t *testing.T) {
	req := require.New(t)
	bus := NewMemoryBus()

	var inboxA, inboxB int
	_, err := bus.Subscribe("inbox.a", func(Event) { inboxA++ })
	req.NoError(err)
	_, err = bus.Subscribe("inbox.b", func(Event) { inboxB++ })
	req.NoError(err)

	ev, err := NewEvent("message.created", nil)
	req.NoError(err)
	req.NoError(bus.Publish(context.Background(), "inbox.a", ev))

	req.Equal(1, inboxA)
	req.Zero(inboxB)
}

func TestMemoryBus_Unsubscribe_Stops_Delivery_And_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	bus := NewMemoryBus()

	var delivered int
	sub, err := bus.Subscribe("inbox.a", func(Event) { delivered++ })
	req.NoError(err)

	ev, _ := NewEvent("message.created", nil)
	req.NoError(bus.Publish(context.Background(), "inbox.a", ev))

	sub.Unsubscribe()
	sub.Unsubscribe()
	req.NoError(bus.Publish(context.Background(), "inbox.a", ev))

	req.Equal(1, delivered)
}

func TestNewEvent_Carries_A_Payload_Round_Trip(t *testing.T) {
	req := require.New(t)

	type payload struct {
		ConversationID uuid.UUID `json:"conversation_id"`
	}
	want := payload{ConversationID: uuid.New()}

	ev, err := NewEvent("conversation.created", want)
	req.NoError(err)
	req.Equal("conversation.created", ev.Type)
	req.False(ev.Time.IsZero())

	var got payload
	req.NoError(json.Unmarshal(ev.Data, &got))
	req.Equal(want, got)
}

func TestNewEvent_Nil_Data_Is_A_Pure_Signal(t *testing.T) {
	req := require.New(t)

	ev, err := NewEvent("typing.start", nil)
	req.NoError(err)
	req.Empty(ev.Data)
}

func TestTopics_Are_Disjoint_Per_Entity(t *testing.T) {
	req := require.New(t)

	userID := uuid.New()
	conversationID := uuid.New()
	tenantID := uuid.New()

	topics := []string{
		TopicInbox(userID),
		TopicConversation(conversationID),
		TopicTyping(conversationID),
		TopicPresence(tenantID),
	}
	seen := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		_, dup := seen[topic]
		req.False(dup, topic)
		seen[topic] = struct{}{}
	}
}
