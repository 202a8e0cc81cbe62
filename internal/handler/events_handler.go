package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Baaaki/resource-hub/internal/events"
	"github.com/Baaaki/resource-hub/internal/metrics"
	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/permission"
	"github.com/Baaaki/resource-hub/internal/service"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxSessionLifetime = 15 * time.Minute
	writeWait          = 10 * time.Second // Time allowed to write a message to the peer
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize     = 4 * 1024            // clients only send control frames
)

// WSResponse is a frame sent to stream clients that is not a resource event
type WSResponse struct {
	Type  string `json:"type"` // "session_expired"
	Error string `json:"error,omitempty"`
}

// EventsHandler streams resource change events to websocket clients
type EventsHandler struct {
	resourceService *service.ResourceService
	subscriber      events.Subscriber
	sessionLifetime time.Duration
	clients         map[*websocket.Conn]*Client
	mu              sync.RWMutex
}

type Client struct {
	conn        *websocket.Conn
	userID      uuid.UUID
	role        models.Role
	connectedAt time.Time
}

func NewEventsHandler(resourceService *service.ResourceService, subscriber events.Subscriber) *EventsHandler {
	return &EventsHandler{
		resourceService: resourceService,
		subscriber:      subscriber,
		sessionLifetime: maxSessionLifetime,
		clients:         make(map[*websocket.Conn]*Client),
	}
}

// NewEventsHandlerWithLifetime is NewEventsHandler with a custom session limit
func NewEventsHandlerWithLifetime(resourceService *service.ResourceService, subscriber events.Subscriber, lifetime time.Duration) *EventsHandler {
	h := NewEventsHandler(resourceService, subscriber)
	h.sessionLifetime = lifetime
	return h
}

// Origin is not checked; the stream requires a valid token.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientCount returns the number of connected stream clients
func (h *EventsHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and forwards every resource event
// until the client leaves or the session lifetime runs out.
// GET /api/ws/resources
func (h *EventsHandler) HandleWebSocket(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	if err := h.resourceService.Authorize(caller, permission.ActionRead); err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before upgrading so a broker failure is still a plain HTTP error
	stream, err := h.subscriber.Subscribe(ctx)
	if err != nil {
		logger.Log.Error("Failed to subscribe to resource events",
			zap.String("user_id", caller.UserID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event stream unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		conn:        conn,
		userID:      caller.UserID,
		role:        caller.Role,
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[conn] = client
	total := len(h.clients)
	h.mu.Unlock()
	metrics.EventSubscribers.Inc()

	logger.Log.Info("Event stream client connected",
		zap.String("user_id", client.userID.String()),
		zap.String("role", string(client.role)),
		zap.Int("total", total),
	)

	defer h.removeClient(conn)

	h.handleClient(ctx, cancel, client, stream)
}

// handleClient owns all data writes to the connection
func (h *EventsHandler) handleClient(ctx context.Context, cancel context.CancelFunc, client *Client, stream <-chan events.Event) {
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The read side only processes control frames; any error ends the session.
	go func() {
		defer cancel()
		for {
			if _, _, err := client.conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Log.Debug("Event stream read error", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	sessionTimer := time.NewTimer(h.sessionLifetime)
	defer sessionTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sessionTimer.C:
			h.closeClientGracefully(client, "session expired")
			return

		case evt, ok := <-stream:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(evt); err != nil {
				logger.Log.Debug("Failed to send event",
					zap.String("user_id", client.userID.String()),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Debug("Ping failed",
					zap.String("user_id", client.userID.String()),
					zap.Error(err),
				)
				return
			}
		}
	}
}

func (h *EventsHandler) closeClientGracefully(client *Client, reason string) {
	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteJSON(WSResponse{
		Type:  "session_expired",
		Error: reason,
	}); err != nil {
		logger.Log.Debug("Failed to send session_expired message", zap.Error(err))
	}

	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
	); err != nil {
		logger.Log.Debug("Failed to send close frame", zap.Error(err))
	}
}

func (h *EventsHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[conn]
	if !exists {
		return
	}
	delete(h.clients, conn)
	conn.Close()
	metrics.EventSubscribers.Dec()

	logger.Log.Info("Event stream client disconnected",
		zap.String("user_id", client.userID.String()),
		zap.Duration("session_duration", time.Since(client.connectedAt).Round(time.Second)),
		zap.Int("remaining", len(h.clients)),
	)
}
