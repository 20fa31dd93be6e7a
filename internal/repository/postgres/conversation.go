package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/admitflow/admitflow/internal/db"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationStore struct {
	pool *pgxpool.Pool
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

// directPairKey builds the canonical key for a direct conversation: the
// two user ids sorted lexicographically and joined. getOrCreate for the
// pair (a, b) and (b, a) hits the same key, and a unique index on
// (tenant_id, direct_key) guarantees at most one row even under
// concurrent creation.
func directPairKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}

func (s *ConversationStore) GetByID(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, tenant_id, kind, COALESCE(subject, ''), created_by, created_at
		FROM conversations
		WHERE id = $1 AND tenant_id = $2`

	var c models.Conversation
	err := s.pool.QueryRow(ctx, query, conversationID, tenantID).Scan(
		&c.ID,
		&c.TenantID,
		&c.Kind,
		&c.Subject,
		&c.CreatedBy,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (s *ConversationStore) GetDirect(ctx context.Context, tenantID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT id, tenant_id, kind, COALESCE(subject, ''), created_by, created_at
		FROM conversations
		WHERE tenant_id = $1 AND direct_key = $2`

	var c models.Conversation
	err := s.pool.QueryRow(ctx, query, tenantID, directPairKey(userA, userB)).Scan(
		&c.ID,
		&c.TenantID,
		&c.Kind,
		&c.Subject,
		&c.CreatedBy,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get direct conversation: %w", err)
	}
	return &c, nil
}

func (s *ConversationStore) CreateDirect(ctx context.Context, tenantID uuid.UUID, createdBy, userA, userB uuid.UUID) (*models.Conversation, error) {
	key := directPairKey(userA, userB)

	var c models.Conversation
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// ON CONFLICT DO NOTHING + re-select makes concurrent
		// getOrCreate calls for the same pair converge on one row.
		insert := `
			INSERT INTO conversations (id, tenant_id, kind, direct_key, created_by, created_at)
			VALUES (gen_random_uuid(), $1, 'direct', $2, $3, now())
			ON CONFLICT (tenant_id, direct_key) DO NOTHING`
		if _, err := tx.Exec(ctx, insert, tenantID, key, createdBy); err != nil {
			return fmt.Errorf("insert direct conversation: %w", err)
		}

		sel := `
			SELECT id, tenant_id, kind, COALESCE(subject, ''), created_by, created_at
			FROM conversations
			WHERE tenant_id = $1 AND direct_key = $2`
		if err := tx.QueryRow(ctx, sel, tenantID, key).Scan(
			&c.ID, &c.TenantID, &c.Kind, &c.Subject, &c.CreatedBy, &c.CreatedAt,
		); err != nil {
			return fmt.Errorf("select direct conversation: %w", err)
		}

		members := `
			INSERT INTO conversation_participants (conversation_id, user_id, last_read_message_id)
			VALUES ($1, $2, 0), ($1, $3, 0)
			ON CONFLICT (conversation_id, user_id) DO NOTHING`
		if _, err := tx.Exec(ctx, members, c.ID, userA, userB); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ConversationStore) IsParticipant(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) (bool, error) {
	// SELECT EXISTS stops at the first match — this runs before every
	// message send, so it has to be cheap.
	query := `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

func (s *ConversationStore) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1`

	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return ids, nil
}

func (s *ConversationStore) ListForUser(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) ([]models.ConversationSummary, error) {
	// One round trip for the whole conversation list: the lateral join
	// picks each conversation's newest message, the correlated subquery
	// counts messages past this user's read watermark (own messages
	// excluded — sending doesn't make a thread unread for the sender).
	query := `
		SELECT c.id, c.tenant_id, c.kind, COALESCE(c.subject, ''), c.created_by, c.created_at,
		       m.id, m.sender_id, m.body, m.kind, m.created_at,
		       (SELECT count(*) FROM messages u
		         WHERE u.conversation_id = c.id
		           AND u.id > p.last_read_message_id
		           AND u.sender_id <> p.user_id)
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, body, kind, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY id DESC
			LIMIT 1
		) m ON true
		WHERE c.tenant_id = $1 AND p.user_id = $2 AND p.hidden_at IS NULL
		ORDER BY COALESCE(m.id, 0) DESC, c.created_at DESC`

	rows, err := s.pool.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var sum models.ConversationSummary
		var (
			msgID     *int64
			msgSender *uuid.UUID
			msgBody   *string
			msgKind   *models.MessageKind
			msgAt     *time.Time
		)
		if err := rows.Scan(
			&sum.Conversation.ID,
			&sum.Conversation.TenantID,
			&sum.Conversation.Kind,
			&sum.Conversation.Subject,
			&sum.Conversation.CreatedBy,
			&sum.Conversation.CreatedAt,
			&msgID,
			&msgSender,
			&msgBody,
			&msgKind,
			&msgAt,
			&sum.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan conversation summary: %w", err)
		}
		if msgID != nil {
			sum.LastMessage = &models.Message{
				ID:             *msgID,
				ConversationID: sum.Conversation.ID,
				SenderID:       *msgSender,
				Body:           *msgBody,
				Kind:           *msgKind,
				CreatedAt:      *msgAt,
			}
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation summaries: %w", err)
	}

	return summaries, nil
}

func (s *ConversationStore) MarkRead(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error {
	// Moves only this user's watermark. Other participants' rows are
	// untouched by construction — the WHERE clause pins both keys.
	query := `
		UPDATE conversation_participants
		SET last_read_message_id = COALESCE(
			(SELECT max(id) FROM messages WHERE conversation_id = $1),
			last_read_message_id)
		WHERE conversation_id = $1 AND user_id = $2`

	_, err := s.pool.Exec(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *ConversationStore) Hide(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error {
	// Per-user removal: the conversation and its messages survive for
	// everyone else. Idempotent — hiding twice keeps the first timestamp.
	query := `
		UPDATE conversation_participants
		SET hidden_at = COALESCE(hidden_at, now())
		WHERE conversation_id = $1 AND user_id = $2`

	_, err := s.pool.Exec(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("hide conversation: %w", err)
	}
	return nil
}
