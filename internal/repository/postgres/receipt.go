package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReceiptStore struct {
	pool *pgxpool.Pool
}

func NewReceiptStore(pool *pgxpool.Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

func (s *ReceiptStore) Get(ctx context.Context, messageID int64, recipientID uuid.UUID) (*models.DeliveryReceipt, error) {
	query := `
		SELECT message_id, recipient_id, delivered_at, read_at
		FROM delivery_receipts
		WHERE message_id = $1 AND recipient_id = $2`

	var r models.DeliveryReceipt
	err := s.pool.QueryRow(ctx, query, messageID, recipientID).Scan(
		&r.MessageID,
		&r.RecipientID,
		&r.DeliveredAt,
		&r.ReadAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return &r, nil
}

func (s *ReceiptStore) MarkDelivered(ctx context.Context, messageID int64, recipientID uuid.UUID, at time.Time) error {
	// COALESCE keeps the first ack's timestamp: a duplicate delivered ack
	// is a no-op, which is what keeps the delivered counter monotone.
	query := `
		UPDATE delivery_receipts
		SET delivered_at = COALESCE(delivered_at, $3)
		WHERE message_id = $1 AND recipient_id = $2`

	_, err := s.pool.Exec(ctx, query, messageID, recipientID, at)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (s *ReceiptStore) MarkRead(ctx context.Context, messageID int64, recipientID uuid.UUID, at time.Time) error {
	// A read ack that beats the delivered ack (client read the push
	// before acking delivery) back-fills delivered_at, preserving the
	// invariant that read_at is never set on an undelivered receipt.
	query := `
		UPDATE delivery_receipts
		SET delivered_at = COALESCE(delivered_at, $3),
		    read_at      = COALESCE(read_at, $3)
		WHERE message_id = $1 AND recipient_id = $2`

	_, err := s.pool.Exec(ctx, query, messageID, recipientID, at)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *ReceiptStore) Counts(ctx context.Context, messageID int64) (int, int, error) {
	// count(column) counts non-null values, so one scan yields both
	// aggregates the broadcast log derives its counters from.
	query := `
		SELECT count(delivered_at), count(read_at)
		FROM delivery_receipts
		WHERE message_id = $1`

	var delivered, read int
	err := s.pool.QueryRow(ctx, query, messageID).Scan(&delivered, &read)
	if err != nil {
		return 0, 0, fmt.Errorf("count receipts: %w", err)
	}
	return delivered, read, nil
}
