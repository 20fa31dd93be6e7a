package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/admitflow/admitflow/internal/db"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BroadcastStore struct {
	pool *pgxpool.Pool
}

func NewBroadcastStore(pool *pgxpool.Pool) *BroadcastStore {
	return &BroadcastStore{pool: pool}
}

// CreateBroadcast creates the whole broadcast unit in one transaction:
// conversation, participant rows for {actor} ∪ recipients, the broadcast
// message, one null-null receipt per recipient, and the log row. A failure
// anywhere rolls everything back — no partial broadcast ever exists.
func (s *BroadcastStore) CreateBroadcast(ctx context.Context, tenantID, actorID uuid.UUID, recipients []uuid.UUID, audience models.AudienceType, scope models.BroadcastScope, subject, body string) (*models.BroadcastLogEntry, *models.Message, error) {
	var (
		entry models.BroadcastLogEntry
		msg   models.Message
	)

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var conversationID uuid.UUID
		convQuery := `
			INSERT INTO conversations (id, tenant_id, kind, subject, created_by, created_at)
			VALUES (gen_random_uuid(), $1, 'broadcast', $2, $3, now())
			RETURNING id`
		if err := tx.QueryRow(ctx, convQuery, tenantID, subject, actorID).Scan(&conversationID); err != nil {
			return fmt.Errorf("insert broadcast conversation: %w", err)
		}

		// unnest turns the recipient array into rows, so N participants
		// land in one statement. The actor joins separately — they get no
		// receipt, only a seat in the conversation.
		participantQuery := `
			INSERT INTO conversation_participants (conversation_id, user_id, last_read_message_id)
			SELECT $1, r, 0 FROM unnest($2::uuid[]) AS r
			UNION ALL
			SELECT $1, $3, 0
			ON CONFLICT (conversation_id, user_id) DO NOTHING`
		if _, err := tx.Exec(ctx, participantQuery, conversationID, recipients, actorID); err != nil {
			return fmt.Errorf("insert broadcast participants: %w", err)
		}

		msgQuery := `
			INSERT INTO messages (conversation_id, sender_id, body, kind, created_at)
			VALUES ($1, $2, $3, 'broadcast', now())
			RETURNING id, conversation_id, sender_id, body, kind, created_at`
		if err := tx.QueryRow(ctx, msgQuery, conversationID, actorID, body).Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.Kind, &msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert broadcast message: %w", err)
		}

		receiptQuery := `
			INSERT INTO delivery_receipts (message_id, recipient_id)
			SELECT $1, r FROM unnest($2::uuid[]) AS r`
		if _, err := tx.Exec(ctx, receiptQuery, msg.ID, recipients); err != nil {
			return fmt.Errorf("insert delivery receipts: %w", err)
		}

		logQuery := `
			INSERT INTO broadcast_log (id, tenant_id, audience, scope, target_count, delivered_count, read_count, subject, message_id, sent_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, 0, 0, $5, $6, now())
			RETURNING id, tenant_id, audience, scope, target_count, delivered_count, read_count, COALESCE(subject, ''), message_id, sent_at`
		if err := tx.QueryRow(ctx, logQuery, tenantID, audience, scope, len(recipients), subject, msg.ID).Scan(
			&entry.ID, &entry.TenantID, &entry.Audience, &entry.Scope,
			&entry.TargetCount, &entry.DeliveredCount, &entry.ReadCount,
			&entry.Subject, &entry.MessageID, &entry.SentAt,
		); err != nil {
			return fmt.Errorf("insert broadcast log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &entry, &msg, nil
}

func (s *BroadcastStore) GetByMessage(ctx context.Context, messageID int64) (*models.BroadcastLogEntry, error) {
	query := `
		SELECT id, tenant_id, audience, scope, target_count, delivered_count, read_count, COALESCE(subject, ''), message_id, sent_at
		FROM broadcast_log
		WHERE message_id = $1`

	var entry models.BroadcastLogEntry
	err := s.pool.QueryRow(ctx, query, messageID).Scan(
		&entry.ID, &entry.TenantID, &entry.Audience, &entry.Scope,
		&entry.TargetCount, &entry.DeliveredCount, &entry.ReadCount,
		&entry.Subject, &entry.MessageID, &entry.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get broadcast by message: %w", err)
	}
	return &entry, nil
}

// RefreshCounts recomputes the counters from the receipts table rather
// than incrementing in place. Recounting is idempotent under duplicate
// acks and can only grow as timestamps are never cleared — which is the
// monotonicity guarantee.
func (s *BroadcastStore) RefreshCounts(ctx context.Context, entryID uuid.UUID) (*models.BroadcastLogEntry, error) {
	query := `
		UPDATE broadcast_log b
		SET delivered_count = (SELECT count(delivered_at) FROM delivery_receipts WHERE message_id = b.message_id),
		    read_count      = (SELECT count(read_at) FROM delivery_receipts WHERE message_id = b.message_id)
		WHERE b.id = $1
		RETURNING id, tenant_id, audience, scope, target_count, delivered_count, read_count, COALESCE(subject, ''), message_id, sent_at`

	var entry models.BroadcastLogEntry
	err := s.pool.QueryRow(ctx, query, entryID).Scan(
		&entry.ID, &entry.TenantID, &entry.Audience, &entry.Scope,
		&entry.TargetCount, &entry.DeliveredCount, &entry.ReadCount,
		&entry.Subject, &entry.MessageID, &entry.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("refresh broadcast counts: %w", err)
	}
	return &entry, nil
}

func (s *BroadcastStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.BroadcastLogEntry, error) {
	query := `
		SELECT id, tenant_id, audience, scope, target_count, delivered_count, read_count, COALESCE(subject, ''), message_id, sent_at
		FROM broadcast_log
		WHERE tenant_id = $1
		ORDER BY sent_at DESC`

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	defer rows.Close()

	entries := make([]models.BroadcastLogEntry, 0)
	for rows.Next() {
		var entry models.BroadcastLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.Audience, &entry.Scope,
			&entry.TargetCount, &entry.DeliveredCount, &entry.ReadCount,
			&entry.Subject, &entry.MessageID, &entry.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate broadcasts: %w", err)
	}

	return entries, nil
}
