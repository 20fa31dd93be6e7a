package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies what kind of actor a profile is. The role drives the
// audience-visibility rules: who a user may message is a function of their
// role plus relationship data (agent links, submitted applications).
type Role string

const (
	RoleStudent    Role = "student"
	RoleAgent      Role = "agent"
	RoleUniversity Role = "university" // institution representative / partner
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
)

// AudienceType is a role-defined recipient category for broadcasts and
// recipient pickers ("all" is the union of every bucket).
type AudienceType string

const (
	AudienceStudents     AudienceType = "students"
	AudienceAgents       AudienceType = "agents"
	AudienceUniversities AudienceType = "universities"
	AudienceAll          AudienceType = "all"
)

// BroadcastScope says whether a broadcast targets a whole audience or an
// explicit recipient list picked from inside that audience.
type BroadcastScope string

const (
	ScopeAll      BroadcastScope = "all"
	ScopeSpecific BroadcastScope = "specific"
)

// ConversationKind distinguishes 1:1 threads, ad-hoc groups, and
// admin broadcasts. Broadcast conversations have a fixed participant set;
// direct/group participants may grow through an explicit add.
type ConversationKind string

const (
	KindDirect    ConversationKind = "direct"
	KindGroup     ConversationKind = "group"
	KindBroadcast ConversationKind = "broadcast"
)

// MessageKind tags broadcast messages so clients can render them apart
// from normal conversation traffic.
type MessageKind string

const (
	MessageNormal    MessageKind = "normal"
	MessageBroadcast MessageKind = "broadcast"
)

// Tenant is the top-level isolation boundary (an agency, a school network).
// Every profile, conversation, and message belongs to exactly one tenant,
// and every query is predicated on tenant_id — a mandatory filter, not an
// optimization.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is a person (or institution contact) within a tenant.
//
// Why TenantID here?
//   - So every query can be scoped: "give me profiles WHERE tenant_id = X".
//   - Prevents cross-tenant data leaks at the query level. The only
//     sanctioned crossing is the student ↔ applied-university join.
//
// PasswordHash is omitted from JSON so it can never leak through a handler
// that returns the model directly.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Role         Role      `json:"role"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation is a set of participants sharing an ordered message history.
type Conversation struct {
	ID        uuid.UUID        `json:"id"`
	TenantID  uuid.UUID        `json:"tenant_id"`
	Kind      ConversationKind `json:"kind"`
	Subject   string           `json:"subject,omitempty"`
	CreatedBy uuid.UUID        `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
}

// Participant is the join row between conversations and profiles.
//
// LastReadMessageID drives the per-user unread counter: messages with a
// higher id are unread for this user. HiddenAt implements per-user
// conversation removal — the conversation disappears from this user's list
// while the message log and other participants are untouched.
type Participant struct {
	ConversationID    uuid.UUID  `json:"conversation_id"`
	UserID            uuid.UUID  `json:"user_id"`
	LastReadMessageID int64      `json:"last_read_message_id"`
	HiddenAt          *time.Time `json:"hidden_at,omitempty"`
}

// Message is one entry in a conversation's append-only log.
//
// Why int64 for ID (not UUID)?
//   - Messages are the highest-volume table; bigserial is smaller,
//     naturally ordered (higher id = newer), and index-friendly.
//   - The id doubles as the pagination cursor and as the read watermark
//     in Participant.LastReadMessageID.
//
// Messages are never mutated or deleted in place. Removing a conversation
// from a user's view never touches this table.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	SenderID       uuid.UUID   `json:"sender_id"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DeliveryReceipt tracks when one recipient received and read one message.
// Exactly one row exists per (message, recipient), created at send time
// with both timestamps null. ReadAt is only ever set after DeliveredAt.
type DeliveryReceipt struct {
	MessageID   int64      `json:"message_id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// BroadcastLogEntry is the accounting row for one broadcast:
// how many recipients it targeted and how many have acknowledged
// delivery/read so far. The counters are derived aggregates over the
// broadcast's delivery receipts and never exceed TargetCount.
type BroadcastLogEntry struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	Audience       AudienceType   `json:"audience"`
	Scope          BroadcastScope `json:"scope"`
	TargetCount    int            `json:"target_count"`
	DeliveredCount int            `json:"delivered_count"`
	ReadCount      int            `json:"read_count"`
	Subject        string         `json:"subject,omitempty"`
	MessageID      int64          `json:"message_id"`
	SentAt         time.Time      `json:"sent_at"`
}

// Recipient is the minimal directory shape audience resolution returns —
// everything a recipient picker needs, nothing more. The mapping layer in
// the postgres repositories produces these so the rest of the core never
// inspects untyped join payloads.
type Recipient struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// ConversationSummary is one row of a user's conversation list: the
// conversation, its latest message, and that user's unread count.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
}

// KnownRole reports whether r is one of the roles the engine understands.
func KnownRole(r Role) bool {
	switch r {
	case RoleStudent, RoleAgent, RoleUniversity, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// KnownAudience reports whether a is a valid audience type.
func KnownAudience(a AudienceType) bool {
	switch a {
	case AudienceStudents, AudienceAgents, AudienceUniversities, AudienceAll:
		return true
	}
	return false
}
