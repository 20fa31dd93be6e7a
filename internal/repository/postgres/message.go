package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func (s *MessageStore) Create(ctx context.Context, conversationID uuid.UUID, senderID uuid.UUID, body string, kind models.MessageKind) (*models.Message, error) {
	// Messages use bigserial, so Postgres assigns the id. Because the
	// sequence is monotone, id order IS the per-conversation message
	// order — no separate sequence number to maintain.
	query := `
		INSERT INTO messages (conversation_id, sender_id, body, kind, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, conversation_id, sender_id, body, kind, created_at`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, conversationID, senderID, body, kind).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Body,
		&msg.Kind,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) ListAfter(ctx context.Context, conversationID uuid.UUID, after int64, limit int) ([]models.Message, error) {
	// Forward cursor pagination, oldest→newest:
	//
	// after=0  → first page (start of history).
	// after=42 → "messages newer than id 42".
	//
	// The caller feeds the last id of one page back as the cursor for the
	// next, so iteration is restartable after a disconnect.
	query := `
		SELECT id, conversation_id, sender_id, body, kind, created_at
		FROM messages
		WHERE conversation_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, conversationID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Body,
			&msg.Kind,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, body, kind, created_at
		FROM messages
		WHERE id = $1`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, messageID).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Body,
		&msg.Kind,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}
