package api

import (
	"net/http"
	"strconv"

	"github.com/admitflow/admitflow/internal/chat"
	"github.com/admitflow/admitflow/internal/middleware"
	"github.com/admitflow/admitflow/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConversationHandler exposes the conversation surface: listing, direct
// thread creation, the message log, read state, and per-user removal.
// All authorization decisions live in the chat service; the handler only
// parses inputs and maps errors to status codes.
type ConversationHandler struct {
	svc      *chat.Service
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func NewConversationHandler(svc *chat.Service, profiles repository.ProfileRepository, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, profiles: profiles, logger: logger}
}

// List handles GET /v1/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	summaries, err := h.svc.ListConversations(c.Request.Context(), tenantID, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

type directRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// Direct handles POST /v1/conversations/direct — getOrCreate for the
// unordered pair (caller, user_id). Idempotent: the same pair always
// lands on the same conversation.
func (h *ConversationHandler) Direct(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	var req directRequest
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

	conv, err := h.svc.GetOrCreateConversation(c.Request.Context(), tenantID, *actor, req.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// Messages handles GET /v1/conversations/:id/messages?after=&limit=
//
// after is the id of the last message the client already has; 0 (or
// absent) starts from the beginning. Responses are oldest→newest so the
// client appends pages in order.
func (h *ConversationHandler) Messages(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	after, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	msgs, err := h.svc.ListMessages(c.Request.Context(), tenantID, conversationID, userID, after, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// The cursor for the next page is the last id in this one.
	var next int64
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].ID
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "next_after": next})
}

type sendRequest struct {
	Body string `json:"body" binding:"required"`
}

// Send handles POST /v1/conversations/:id/messages
func (h *ConversationHandler) Send(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), tenantID, conversationID, userID, req.Body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Read handles POST /v1/conversations/:id/read — zeroes the caller's
// unread counter, nobody else's.
func (h *ConversationHandler) Read(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	if err := h.svc.MarkAsRead(c.Request.Context(), tenantID, conversationID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// Remove handles DELETE /v1/conversations/:id — hides the conversation
// from the caller's list. The thread and the other participants keep
// their history.
func (h *ConversationHandler) Remove(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	if err := h.svc.RemoveConversation(c.Request.Context(), tenantID, conversationID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
