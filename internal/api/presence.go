package api

import (
	"net/http"
	"strings"

	"github.com/admitflow/admitflow/internal/middleware"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/admitflow/admitflow/internal/presence"
	"github.com/admitflow/admitflow/internal/realtime"
	"github.com/admitflow/admitflow/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PresenceHandler covers the liveness surface: heartbeats, online
// queries, and typing signals. Each mutation also publishes a bus event
// so subscribed feeds refresh — the store holds the truth, the event is
// just a nudge.
type PresenceHandler struct {
	tracker       *presence.Tracker
	typing        *presence.TypingCoordinator
	conversations repository.ConversationRepository
	publisher     realtime.Publisher
	logger        *zap.Logger
}

func NewPresenceHandler(
	tracker *presence.Tracker,
	typing *presence.TypingCoordinator,
	conversations repository.ConversationRepository,
	publisher realtime.Publisher,
	logger *zap.Logger,
) *PresenceHandler {
	return &PresenceHandler{
		tracker:       tracker,
		typing:        typing,
		conversations: conversations,
		publisher:     publisher,
		logger:        logger,
	}
}

// Heartbeat handles POST /v1/presence/heartbeat. Clients call it on an
// interval shorter than the presence TTL; missing a few beats simply
// lets the signal expire — no explicit "offline" call needed.
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	if err := h.tracker.Heartbeat(c.Request.Context(), tenantID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.publishNudge(c, realtime.TopicPresence(tenantID), "presence.heartbeat")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Online handles GET /v1/presence?ids=a,b,c — returns the online flag
// for exactly the ids asked about.
func (h *PresenceHandler) Online(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	raw := c.Query("ids")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids query parameter required"})
		return
	}

	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id: " + part})
			return
		}
		ids = append(ids, id)
	}

	online, err := h.tracker.Online(c.Request.Context(), tenantID, ids)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"online": online})
}

type typingRequest struct {
	// Action is "start" or "stop". Start is re-sent while the user keeps
	// typing; a missed stop expires on its own via the TTL.
	Action string `json:"action" binding:"required"`
}

// Typing handles POST /v1/conversations/:id/typing
func (h *PresenceHandler) Typing(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isMember, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !isMember {
		respondError(c, h.logger, models.ErrAuthorization)
		return
	}

	switch req.Action {
	case "start":
		err = h.typing.Start(c.Request.Context(), conversationID, userID)
	case "stop":
		err = h.typing.Stop(c.Request.Context(), conversationID, userID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be start or stop"})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.publishNudge(c, realtime.TopicTyping(conversationID), "typing."+req.Action)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// publishNudge emits a data-less event. Best effort: the TTL store
// already holds the state, so a dropped nudge only delays a refresh.
func (h *PresenceHandler) publishNudge(c *gin.Context, topic, eventType string) {
	ev, err := realtime.NewEvent(eventType, nil)
	if err != nil {
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), topic, ev); err != nil {
		h.logger.Warn("publish presence event", zap.String("topic", topic), zap.Error(err))
	}
}
