package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypingCoordinator tracks who is typing in a conversation. A keystroke
// renews the signal; it ends either on an explicit Stop or when the TTL
// lapses with no renewal — so a crashed client can never leave a "still
// typing" indicator behind.
type TypingCoordinator struct {
	store SignalStore
	ttl   time.Duration
	now   func() time.Time
}

// NewTypingCoordinator builds a coordinator. now may be nil for time.Now.
func NewTypingCoordinator(store SignalStore, ttl time.Duration, now func() time.Time) *TypingCoordinator {
	if now == nil {
		now = time.Now
	}
	return &TypingCoordinator{store: store, ttl: ttl, now: now}
}

func typingSet(conversationID uuid.UUID) string {
	return "typing:" + conversationID.String()
}

// Start records (or renews) a typing signal for the user.
func (t *TypingCoordinator) Start(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := t.store.Put(ctx, typingSet(conversationID), userID, t.now().Add(t.ttl)); err != nil {
		return fmt.Errorf("start typing: %w", err)
	}
	return nil
}

// Stop removes the signal immediately (the user sent the message or
// cleared the input).
func (t *TypingCoordinator) Stop(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := t.store.Remove(ctx, typingSet(conversationID), userID); err != nil {
		return fmt.Errorf("stop typing: %w", err)
	}
	return nil
}

// Typers returns the current typer set for the conversation, expired
// signals already pruned.
func (t *TypingCoordinator) Typers(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	typers, err := t.store.Active(ctx, typingSet(conversationID), t.now())
	if err != nil {
		return nil, fmt.Errorf("read typers: %w", err)
	}
	return typers, nil
}
