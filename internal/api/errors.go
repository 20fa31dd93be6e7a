package api

import (
	"errors"
	"net/http"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps the core error taxonomy to HTTP statuses in one
// place. Category errors get their real message; anything unclassified is
// logged in full and answered with a generic 500 body so internals never
// leak to clients.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAuthorization):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNoRecipients):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrDuplicateSubscription):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrTransientTransport):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "messaging temporarily unavailable"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
