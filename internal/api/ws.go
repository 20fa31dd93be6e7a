package api

import (
	"net/http"

	"github.com/admitflow/admitflow/internal/middleware"
	"github.com/admitflow/admitflow/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler upgrades GET /v1/ws to a websocket and hands the socket to
// the gateway. Authentication already happened in AuthMiddleware, so by
// the time we upgrade we know exactly who is on the wire.
type WSHandler struct {
	gateway  *realtime.Gateway
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(gateway *realtime.Gateway, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checking belongs to the reverse proxy in this
			// deployment; the JWT already gates the endpoint.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve handles GET /v1/ws
func (h *WSHandler) Serve(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := middleware.GetUserID(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.gateway.Serve(ws, tenantID, userID)
}
