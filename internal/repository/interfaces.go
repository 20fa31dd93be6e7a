package repository

import (
	"context"
	"time"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
)

// Every method takes context.Context first — all of these touch the
// network, so they carry deadlines and cancellation from the request.
//
// tenantID appears in almost every signature for the same reason it does
// on every table: multi-tenancy safety. Even if someone guesses a
// conversation UUID, the query fails unless their tenant matches. The
// handlers extract tenantID from the JWT and pass it down; the repository
// never trusts the caller.

// TenantRepository manages tenant rows.
type TenantRepository interface {
	Create(ctx context.Context, name string) (*models.Tenant, error)
}

// ProfileRepository handles the people directory.
type ProfileRepository interface {
	// Create inserts a profile and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, tenantID uuid.UUID, role models.Role, name, email, passwordHash string) (*models.Profile, error)

	// GetByID returns a profile scoped to the tenant. Returns nil, nil if not found.
	GetByID(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.Profile, error)

	// GetByEmail looks up a profile globally (login path).
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
}

// DirectoryRepository answers the relationship queries audience resolution
// is built from. Each method returns one visibility bucket, already mapped
// to the strongly-typed Recipient shape — callers never see raw join rows.
type DirectoryRepository interface {
	// LinkedStudents returns the students linked to an agent through the
	// agent_students relation.
	LinkedStudents(ctx context.Context, tenantID uuid.UUID, agentID uuid.UUID) ([]models.Recipient, error)

	// LinkedAgents is the reverse direction: agents linked to a student.
	LinkedAgents(ctx context.Context, tenantID uuid.UUID, studentID uuid.UUID) ([]models.Recipient, error)

	// UniversityContactsForStudent returns contacts of institutions the
	// student has a *submitted* application to. This is the one sanctioned
	// cross-tenant edge: the contact rows may live under the institution's
	// tenant, reachable only through the applications join.
	UniversityContactsForStudent(ctx context.Context, tenantID uuid.UUID, studentID uuid.UUID) ([]models.Recipient, error)

	// SubmittedApplicants returns students with a submitted application to
	// one of the contact's institution programs.
	SubmittedApplicants(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID) ([]models.Recipient, error)

	// ByRoles returns all tenant profiles holding any of the given roles.
	ByRoles(ctx context.Context, tenantID uuid.UUID, roles ...models.Role) ([]models.Recipient, error)
}

// ConversationRepository handles conversation and participant rows.
type ConversationRepository interface {
	// GetByID returns a conversation scoped to the tenant. nil, nil if not found.
	GetByID(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) (*models.Conversation, error)

	// GetDirect finds the direct conversation for an unordered user pair.
	// nil, nil if the pair has never talked.
	GetDirect(ctx context.Context, tenantID uuid.UUID, userA, userB uuid.UUID) (*models.Conversation, error)

	// CreateDirect inserts a direct conversation for the pair. A unique
	// index on the canonical pair key makes concurrent calls collapse to
	// one row; on conflict the existing row is returned.
	CreateDirect(ctx context.Context, tenantID uuid.UUID, createdBy, userA, userB uuid.UUID) (*models.Conversation, error)

	// IsParticipant is the hot-path authorization check before every send.
	IsParticipant(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) (bool, error)

	// ListParticipants returns every participant's user id, hidden or not
	// (a hidden view still belongs to a participant).
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)

	// ListForUser returns the user's visible (non-hidden) conversations,
	// newest activity first, each with last message and unread count.
	ListForUser(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) ([]models.ConversationSummary, error)

	// MarkRead moves the user's read watermark to the conversation head.
	// Touches only that user's participant row.
	MarkRead(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error

	// Hide removes the conversation from the user's view only. Message
	// history and other participants are untouched.
	Hide(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error
}

// MessageRepository handles the append-only message log.
type MessageRepository interface {
	// Create appends a message; Postgres assigns the id and timestamp, so
	// ordering within a conversation is the bigserial order.
	Create(ctx context.Context, conversationID uuid.UUID, senderID uuid.UUID, body string, kind models.MessageKind) (*models.Message, error)

	// ListAfter returns messages oldest→newest with id > after, capped at
	// limit. after=0 starts from the beginning; the last returned id is
	// the cursor for the next page, so iteration is restartable.
	ListAfter(ctx context.Context, conversationID uuid.UUID, after int64, limit int) ([]models.Message, error)

	// GetByID returns a message. nil, nil if not found.
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)
}

// ReceiptRepository handles per-recipient delivery accounting.
type ReceiptRepository interface {
	// Get returns the receipt for (message, recipient). nil, nil if absent —
	// meaning the user was not a recipient of that message.
	Get(ctx context.Context, messageID int64, recipientID uuid.UUID) (*models.DeliveryReceipt, error)

	// MarkDelivered sets delivered_at if still null. Idempotent: a second
	// ack keeps the first timestamp, so counters stay monotone.
	MarkDelivered(ctx context.Context, messageID int64, recipientID uuid.UUID, at time.Time) error

	// MarkRead sets read_at if still null, and delivered_at too when the
	// read ack arrives first (read implies delivered).
	MarkRead(ctx context.Context, messageID int64, recipientID uuid.UUID, at time.Time) error

	// Counts returns how many receipts for the message have delivered_at
	// and read_at set. Source of truth for the broadcast counters.
	Counts(ctx context.Context, messageID int64) (delivered int, read int, err error)
}

// BroadcastRepository handles broadcast creation and its accounting log.
type BroadcastRepository interface {
	// CreateBroadcast atomically creates the broadcast conversation (actor
	// + recipients as participants), the broadcast message, one null-null
	// receipt per recipient, and the log row with target_count =
	// len(recipients). All five succeed or none do.
	CreateBroadcast(ctx context.Context, tenantID, actorID uuid.UUID, recipients []uuid.UUID, audience models.AudienceType, scope models.BroadcastScope, subject, body string) (*models.BroadcastLogEntry, *models.Message, error)

	// GetByMessage returns the log entry whose message_id matches.
	// nil, nil if the message is not a broadcast.
	GetByMessage(ctx context.Context, messageID int64) (*models.BroadcastLogEntry, error)

	// RefreshCounts recomputes delivered_count/read_count from the
	// receipts table and returns the updated entry.
	RefreshCounts(ctx context.Context, entryID uuid.UUID) (*models.BroadcastLogEntry, error)

	// ListByTenant returns the tenant's broadcast history, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.BroadcastLogEntry, error)
}
