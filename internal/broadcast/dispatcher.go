package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/admitflow/admitflow/internal/audience"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/admitflow/admitflow/internal/realtime"
	"github.com/admitflow/admitflow/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request carries everything needed to fan one message out to an
// audience.
type Request struct {
	Actor        models.Profile
	TenantID     uuid.UUID
	AudienceType models.AudienceType
	Scope        models.BroadcastScope
	Subject      string
	Body         string
	// ExplicitRecipients is required for ScopeSpecific and ignored for
	// ScopeAll. Every id must sit inside the audience the resolver would
	// return — an out-of-audience id fails the whole call.
	ExplicitRecipients []uuid.UUID
}

// Dispatcher orchestrates broadcasts: resolve the audience, create the
// conversation/message/receipts/log atomically, then publish to each
// recipient's personal topic.
type Dispatcher struct {
	resolver *audience.Resolver
	store    repository.BroadcastRepository
	receipts repository.ReceiptRepository
	bus      realtime.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher builds a Dispatcher. now may be nil for time.Now.
func NewDispatcher(
	resolver *audience.Resolver,
	store repository.BroadcastRepository,
	receipts repository.ReceiptRepository,
	bus realtime.Publisher,
	logger *zap.Logger,
	now func() time.Time,
) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		resolver: resolver,
		store:    store,
		receipts: receipts,
		bus:      bus,
		logger:   logger,
		now:      now,
	}
}

// Create sends one broadcast.
//
// The storage step is a single transaction: conversation, participants,
// message, N receipts, and the log row land together or not at all — a
// broadcast never partially exists. Publishing happens after commit and
// is fire-and-forget: delivery accounting is driven by recipient acks,
// not by publish success.
func (d *Dispatcher) Create(ctx context.Context, req Request) (*models.BroadcastLogEntry, error) {
	if req.Body == "" {
		return nil, fmt.Errorf("empty body: %w", models.ErrValidation)
	}
	if !models.KnownAudience(req.AudienceType) {
		return nil, fmt.Errorf("audience %q: %w", req.AudienceType, models.ErrValidation)
	}

	resolved, err := d.resolver.Resolve(ctx, audience.Query{
		ActorID:      req.Actor.ID,
		ActorRole:    req.Actor.Role,
		TenantID:     req.TenantID,
		AudienceType: req.AudienceType,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	var recipients []uuid.UUID
	switch req.Scope {
	case models.ScopeAll:
		recipients = make([]uuid.UUID, 0, len(resolved))
		for _, rec := range resolved {
			recipients = append(recipients, rec.ID)
		}
	case models.ScopeSpecific:
		if len(req.ExplicitRecipients) == 0 {
			return nil, fmt.Errorf("specific scope without recipients: %w", models.ErrValidation)
		}
		inAudience := make(map[uuid.UUID]struct{}, len(resolved))
		for _, rec := range resolved {
			inAudience[rec.ID] = struct{}{}
		}
		seen := make(map[uuid.UUID]struct{}, len(req.ExplicitRecipients))
		recipients = make([]uuid.UUID, 0, len(req.ExplicitRecipients))
		for _, id := range req.ExplicitRecipients {
			// Even explicitly listed recipients must be inside the
			// resolved audience — an admin can't smuggle a message to
			// someone the visibility rules exclude.
			if _, ok := inAudience[id]; !ok {
				return nil, fmt.Errorf("recipient %s outside audience %q: %w", id, req.AudienceType, models.ErrAuthorization)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			recipients = append(recipients, id)
		}
	default:
		return nil, fmt.Errorf("scope %q: %w", req.Scope, models.ErrValidation)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("audience %q: %w", req.AudienceType, models.ErrNoRecipients)
	}

	entry, msg, err := d.store.CreateBroadcast(ctx, req.TenantID, req.Actor.ID, recipients, req.AudienceType, req.Scope, req.Subject, req.Body)
	if err != nil {
		return nil, fmt.Errorf("create broadcast: %w", err)
	}

	d.publish(ctx, msg, recipients)
	return entry, nil
}

// publish fans the message out to each recipient's personal topic. Fire
// and forget: a failed publish is logged and skipped — the recipient
// still sees the message on their next list fetch, and the receipt stays
// undelivered until their client acks.
func (d *Dispatcher) publish(ctx context.Context, msg *models.Message, recipients []uuid.UUID) {
	ev, err := realtime.NewEvent("broadcast.created", msg)
	if err != nil {
		d.logger.Warn("build broadcast event", zap.Error(err))
		return
	}
	for _, id := range recipients {
		if err := d.bus.Publish(ctx, realtime.TopicInbox(id), ev); err != nil {
			d.logger.Warn("publish broadcast event",
				zap.String("recipient_id", id.String()),
				zap.Int64("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
}

// AckDelivered records a recipient's delivery acknowledgement and
// refreshes the broadcast counters. Idempotent: the receipt keeps its
// first timestamp, and counters are recomputed from receipts, so they
// only ever grow.
func (d *Dispatcher) AckDelivered(ctx context.Context, messageID int64, recipientID uuid.UUID) (*models.BroadcastLogEntry, error) {
	return d.ack(ctx, messageID, recipientID, d.receipts.MarkDelivered)
}

// AckRead records a read acknowledgement. A read ack on an undelivered
// receipt back-fills delivered_at, so read_at never precedes it.
func (d *Dispatcher) AckRead(ctx context.Context, messageID int64, recipientID uuid.UUID) (*models.BroadcastLogEntry, error) {
	return d.ack(ctx, messageID, recipientID, d.receipts.MarkRead)
}

func (d *Dispatcher) ack(ctx context.Context, messageID int64, recipientID uuid.UUID, mark func(context.Context, int64, uuid.UUID, time.Time) error) (*models.BroadcastLogEntry, error) {
	receipt, err := d.receipts.Get(ctx, messageID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	if receipt == nil {
		// No receipt means this user was never a recipient of the
		// message — indistinguishable from the message not existing.
		return nil, fmt.Errorf("receipt for message %d: %w", messageID, models.ErrNotFound)
	}

	if err := mark(ctx, messageID, recipientID, d.now()); err != nil {
		return nil, fmt.Errorf("mark receipt: %w", err)
	}

	entry, err := d.store.GetByMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get broadcast: %w", err)
	}
	if entry == nil {
		// A direct/group message with receipts would land here; today
		// only broadcasts carry receipts, so treat it as done.
		return nil, nil
	}
	return d.store.RefreshCounts(ctx, entry.ID)
}

// List returns the tenant's broadcast history, newest first.
func (d *Dispatcher) List(ctx context.Context, tenantID uuid.UUID) ([]models.BroadcastLogEntry, error) {
	return d.store.ListByTenant(ctx, tenantID)
}
