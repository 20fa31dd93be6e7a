package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// GatewayDeps are the fetch functions the gateway binds feeds to. They
// are closures wired in main so the realtime package stays independent of
// the service packages.
type GatewayDeps struct {
	ListConversations func(ctx context.Context, tenantID, userID uuid.UUID) ([]models.ConversationSummary, error)
	PresenceMap       func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	Typers            func(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}

// clientCommand is what the browser sends over the socket to manage its
// subscriptions.
type clientCommand struct {
	Action         string      `json:"action"` // subscribe_conversations | subscribe_presence | subscribe_typing | unsubscribe_typing
	ConversationID uuid.UUID   `json:"conversation_id,omitempty"`
	UserIDs        []uuid.UUID `json:"user_ids,omitempty"`
}

// serverFrame is what the gateway pushes back.
type serverFrame struct {
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
}

// Gateway bridges websocket clients to the feed layer. One active socket
// per user: attaching a new one replaces (and closes) the previous, which
// also disposes all of the old session's subscriptions — the at most one
// subscription per (topic, session) rule extends to whole sessions.
type Gateway struct {
	feeds  *Feeds
	deps   GatewayDeps
	logger *zap.Logger

	mu          sync.Mutex
	connections map[uuid.UUID]*Connection // userID -> active connection
}

func NewGateway(feeds *Feeds, deps GatewayDeps, logger *zap.Logger) *Gateway {
	return &Gateway{
		feeds:       feeds,
		deps:        deps,
		logger:      logger,
		connections: make(map[uuid.UUID]*Connection),
	}
}

// Serve owns the socket until the client disconnects. It must be called
// from the HTTP handler's goroutine after the upgrade.
func (g *Gateway) Serve(ws *websocket.Conn, tenantID, userID uuid.UUID) {
	conn := NewConnection(userID, ws)

	g.mu.Lock()
	previous := g.connections[userID]
	g.connections[userID] = conn
	g.mu.Unlock()

	if previous != nil {
		g.feeds.DisposeSession(previous.SessionID)
		previous.Close(4001, "session replaced")
	}

	conn.Start()
	defer func() {
		g.feeds.DisposeSession(conn.SessionID)
		g.mu.Lock()
		if g.connections[userID] == conn {
			delete(g.connections, userID)
		}
		g.mu.Unlock()
		conn.Close(websocket.CloseNormalClosure, "bye")
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			g.push(conn, "error", "malformed command")
			continue
		}
		if err := g.handle(conn, tenantID, cmd); err != nil {
			g.logger.Warn("gateway command failed",
				zap.String("action", cmd.Action),
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			g.push(conn, "error", err.Error())
		}
	}
}

func (g *Gateway) handle(conn *Connection, tenantID uuid.UUID, cmd clientCommand) error {
	switch cmd.Action {
	case "subscribe_conversations":
		_, err := g.feeds.SubscribeConversations(conn.SessionID, conn.UserID,
			func(ctx context.Context) ([]models.ConversationSummary, error) {
				return g.deps.ListConversations(ctx, tenantID, conn.UserID)
			},
			func(summaries []models.ConversationSummary) {
				g.push(conn, "conversations", summaries)
			},
			func(err error) {
				g.push(conn, "error", "conversation refresh failed")
			},
		)
		return err

	case "subscribe_presence":
		if len(cmd.UserIDs) == 0 {
			return errors.New("subscribe_presence requires user_ids")
		}
		ids := cmd.UserIDs
		_, err := g.feeds.SubscribePresence(conn.SessionID, tenantID,
			func(ctx context.Context) (map[uuid.UUID]bool, error) {
				return g.deps.PresenceMap(ctx, tenantID, ids)
			},
			func(online map[uuid.UUID]bool) {
				g.push(conn, "presence", online)
			},
			func(err error) {
				g.push(conn, "error", "presence refresh failed")
			},
		)
		return err

	case "subscribe_typing":
		if cmd.ConversationID == uuid.Nil {
			return errors.New("subscribe_typing requires conversation_id")
		}
		conversationID := cmd.ConversationID
		_, err := g.feeds.SubscribeTyping(conn.SessionID, conversationID,
			func(ctx context.Context) ([]uuid.UUID, error) {
				return g.deps.Typers(ctx, conversationID)
			},
			func(typers []uuid.UUID) {
				g.push(conn, "typing", map[string]any{
					"conversation_id": conversationID,
					"user_ids":        typers,
				})
			},
			func(err error) {
				g.push(conn, "error", "typing refresh failed")
			},
		)
		return err

	default:
		return errors.New("unknown action")
	}
}

func (g *Gateway) push(conn *Connection, kind string, data any) {
	if conn.Closed() {
		return
	}
	payload, err := json.Marshal(serverFrame{Kind: kind, Data: data})
	if err != nil {
		g.logger.Warn("marshal frame", zap.String("kind", kind), zap.Error(err))
		return
	}
	_ = conn.Send(payload)
}
