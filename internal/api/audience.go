package api

import (
	"net/http"
	"strconv"

	"github.com/admitflow/admitflow/internal/audience"
	"github.com/admitflow/admitflow/internal/middleware"
	"github.com/admitflow/admitflow/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AudienceHandler exposes the resolver for recipient pickers: "who can I
// message / broadcast to". The identity comes from the JWT, never from
// the query string, so a caller cannot resolve someone else's audience.
type AudienceHandler struct {
	resolver *audience.Resolver
	logger   *zap.Logger
}

func NewAudienceHandler(resolver *audience.Resolver, logger *zap.Logger) *AudienceHandler {
	return &AudienceHandler{resolver: resolver, logger: logger}
}

// Resolve handles GET /v1/audience?type=&q=&limit=
func (h *AudienceHandler) Resolve(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)
	role := middleware.GetRole(c)

	audienceType := models.AudienceType(c.DefaultQuery("type", string(models.AudienceAll)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	recipients, err := h.resolver.Resolve(c.Request.Context(), audience.Query{
		ActorID:      userID,
		ActorRole:    role,
		TenantID:     tenantID,
		AudienceType: audienceType,
		Search:       c.Query("q"),
		Limit:        limit,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipients": recipients})
}
