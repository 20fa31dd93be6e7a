package chat

import (
	"context"
	"fmt"

	"github.com/admitflow/admitflow/internal/audience"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/admitflow/admitflow/internal/realtime"
	"github.com/admitflow/admitflow/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPageSize = 50

// Service implements the conversation and message-log operations: direct
// threads, ordered retrieval, per-user read state and removal. Broadcast
// creation lives in the broadcast package; this service covers everything
// participants do inside a conversation.
type Service struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	profiles      repository.ProfileRepository
	resolver      *audience.Resolver
	publisher     realtime.Publisher
	probe         *realtime.CapabilityProbe
	logger        *zap.Logger
}

func NewService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	profiles repository.ProfileRepository,
	resolver *audience.Resolver,
	publisher realtime.Publisher,
	probe *realtime.CapabilityProbe,
	logger *zap.Logger,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		resolver:      resolver,
		publisher:     publisher,
		probe:         probe,
		logger:        logger,
	}
}

// GetOrCreateConversation returns the direct conversation for the
// unordered pair (actor, other), creating it on first contact. Repeated
// calls with the pair in either order return the same conversation —
// the canonical pair key in the store guarantees it even under
// concurrency.
//
// The actor may only open a thread with someone inside their resolved
// audience: the same visibility graph that gates broadcasts gates 1:1
// contact.
func (s *Service) GetOrCreateConversation(ctx context.Context, tenantID uuid.UUID, actor models.Profile, otherID uuid.UUID) (*models.Conversation, error) {
	if actor.ID == otherID {
		return nil, fmt.Errorf("conversation with self: %w", models.ErrValidation)
	}

	visible, err := s.resolver.Resolve(ctx, audience.Query{
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		TenantID:     tenantID,
		AudienceType: models.AudienceAll,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve visibility: %w", err)
	}
	allowed := false
	for _, rec := range visible {
		if rec.ID == otherID {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("user %s outside audience: %w", otherID, models.ErrAuthorization)
	}

	existing, err := s.conversations.GetDirect(ctx, tenantID, actor.ID, otherID)
	if err != nil {
		return nil, fmt.Errorf("get direct conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	conv, err := s.conversations.CreateDirect(ctx, tenantID, actor.ID, actor.ID, otherID)
	if err != nil {
		return nil, fmt.Errorf("create direct conversation: %w", err)
	}

	// Both parties learn about the new thread through their personal
	// topics; failures here are logged, not fatal — the conversation
	// exists either way.
	s.notifyInbox(ctx, "conversation.created", conv, []uuid.UUID{actor.ID, otherID})
	return conv, nil
}

// SendMessage appends a message to the conversation and notifies every
// participant. The sender must be a participant; tenancy is enforced by
// the conversation lookup.
//
// While the realtime transport is known-down, sends fail fast with
// ErrTransientTransport instead of silently landing without notification
// and replaying out of order after reconnect.
func (s *Service) SendMessage(ctx context.Context, tenantID, conversationID, senderID uuid.UUID, body string) (*models.Message, error) {
	if body == "" {
		return nil, fmt.Errorf("empty body: %w", models.ErrValidation)
	}

	conv, err := s.conversations.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}

	isMember, err := s.conversations.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, fmt.Errorf("check participant: %w", err)
	}
	if !isMember {
		return nil, fmt.Errorf("sender not a participant: %w", models.ErrAuthorization)
	}

	if s.probe != nil && !s.probe.Available(ctx) {
		return nil, fmt.Errorf("send message: %w", models.ErrTransientTransport)
	}

	msg, err := s.messages.Create(ctx, conversationID, senderID, body, models.MessageNormal)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	participants, err := s.conversations.ListParticipants(ctx, conversationID)
	if err != nil {
		// The message is durable; only the notification fan-out failed.
		s.logger.Error("list participants for notify", zap.Error(err))
		return msg, nil
	}

	ev, err := realtime.NewEvent("message.created", msg)
	if err == nil {
		if perr := s.publisher.Publish(ctx, realtime.TopicConversation(conversationID), ev); perr != nil {
			s.logger.Warn("publish message event", zap.Error(perr))
		}
	}
	s.notifyInbox(ctx, "message.created", msg, participants)
	return msg, nil
}

// ListMessages returns a page of the conversation's log, oldest→newest.
// after is the id cursor from the previous page (0 = from the start);
// the caller must be a participant.
func (s *Service) ListMessages(ctx context.Context, tenantID, conversationID, userID uuid.UUID, after int64, limit int) ([]models.Message, error) {
	conv, err := s.conversations.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}

	isMember, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("check participant: %w", err)
	}
	if !isMember {
		return nil, fmt.Errorf("not a participant: %w", models.ErrAuthorization)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.messages.ListAfter(ctx, conversationID, after, limit)
}

// ListConversations returns the user's visible conversation list with
// unread counts, newest activity first.
func (s *Service) ListConversations(ctx context.Context, tenantID, userID uuid.UUID) ([]models.ConversationSummary, error) {
	return s.conversations.ListForUser(ctx, tenantID, userID)
}

// MarkAsRead zeroes the unread counter for the calling user only. Other
// participants' unread state is untouched — the repository update is
// keyed on (conversation, user).
func (s *Service) MarkAsRead(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error {
	if err := s.requireParticipant(ctx, tenantID, conversationID, userID); err != nil {
		return err
	}
	if err := s.conversations.MarkRead(ctx, conversationID, userID); err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	s.notifyInbox(ctx, "conversation.read", nil, []uuid.UUID{userID})
	return nil
}

// RemoveConversation hides the conversation from the calling user's view.
// Message history and the other participants' views are untouched.
func (s *Service) RemoveConversation(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error {
	if err := s.requireParticipant(ctx, tenantID, conversationID, userID); err != nil {
		return err
	}
	if err := s.conversations.Hide(ctx, conversationID, userID); err != nil {
		return fmt.Errorf("remove conversation: %w", err)
	}
	s.notifyInbox(ctx, "conversation.removed", nil, []uuid.UUID{userID})
	return nil
}

func (s *Service) requireParticipant(ctx context.Context, tenantID, conversationID, userID uuid.UUID) error {
	conv, err := s.conversations.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	isMember, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !isMember {
		return fmt.Errorf("not a participant: %w", models.ErrAuthorization)
	}
	return nil
}

// notifyInbox publishes an event to each user's personal topic. Best
// effort: a publish failure is logged and the loop continues — inbox
// notifications drive list refreshes, not correctness.
func (s *Service) notifyInbox(ctx context.Context, eventType string, data any, userIDs []uuid.UUID) {
	ev, err := realtime.NewEvent(eventType, data)
	if err != nil {
		s.logger.Warn("build inbox event", zap.Error(err))
		return
	}
	for _, id := range userIDs {
		if err := s.publisher.Publish(ctx, realtime.TopicInbox(id), ev); err != nil {
			s.logger.Warn("publish inbox event",
				zap.String("user_id", id.String()),
				zap.Error(err),
			)
		}
	}
}
