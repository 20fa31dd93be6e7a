package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/admitflow/admitflow/internal/broadcast"
	"github.com/admitflow/admitflow/internal/middleware"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/admitflow/admitflow/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BroadcastHandler covers announcement creation and the two ack
// endpoints recipients hit as broadcasts reach them. Creation is gated
// on role by the router (staff/admin); acks are open to any recipient —
// the dispatcher rejects non-recipients by receipt lookup.
type BroadcastHandler struct {
	dispatcher *broadcast.Dispatcher
	profiles   repository.ProfileRepository
	logger     *zap.Logger
}

func NewBroadcastHandler(dispatcher *broadcast.Dispatcher, profiles repository.ProfileRepository, logger *zap.Logger) *BroadcastHandler {
	return &BroadcastHandler{dispatcher: dispatcher, profiles: profiles, logger: logger}
}

type createBroadcastRequest struct {
	Audience models.AudienceType   `json:"audience" binding:"required"`
	Scope    models.BroadcastScope `json:"scope" binding:"required"`
	Subject  string                `json:"subject"`
	Body     string                `json:"body" binding:"required"`

	// Recipients is honored only when scope is "specific"; each id must
	// fall inside the resolved audience.
	Recipients []uuid.UUID `json:"recipients"`
}

// Create handles POST /v1/broadcasts
func (h *BroadcastHandler) Create(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	var req createBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, err := h.profiles.GetByID(c.Request.Context(), tenantID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown caller"})
		return
	}

	entry, err := h.dispatcher.Create(c.Request.Context(), broadcast.Request{
		Actor:              *actor,
		TenantID:           tenantID,
		AudienceType:       req.Audience,
		Scope:              req.Scope,
		Subject:            req.Subject,
		Body:               req.Body,
		ExplicitRecipients: req.Recipients,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"broadcast": entry})
}

// List handles GET /v1/broadcasts — the tenant's announcement history
// with live delivered/read counters.
func (h *BroadcastHandler) List(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	entries, err := h.dispatcher.List(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"broadcasts": entries})
}

// AckDelivered handles POST /v1/messages/:id/delivered
func (h *BroadcastHandler) AckDelivered(c *gin.Context) {
	h.ack(c, h.dispatcher.AckDelivered)
}

// AckRead handles POST /v1/messages/:id/read
func (h *BroadcastHandler) AckRead(c *gin.Context) {
	h.ack(c, h.dispatcher.AckRead)
}

func (h *BroadcastHandler) ack(c *gin.Context, mark func(ctx context.Context, messageID int64, recipientID uuid.UUID) (*models.BroadcastLogEntry, error)) {
	userID := middleware.GetUserID(c)

	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	entry, err := mark(c.Request.Context(), messageID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"broadcast": entry})
}
