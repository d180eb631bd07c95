package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/models"
	"go.uber.org/zap"
)

// Handler exposes the gateway over HTTP: the websocket upgrade endpoint and
// a small admin surface.
type Handler struct {
	hub     *Hub
	service *Service
}

// NewHandler creates the HTTP handler for the gateway.
func NewHandler(hub *Hub, service *Service) *Handler {
	return &Handler{hub: hub, service: service}
}

// HandleSocket upgrades the HTTP connection and runs the client pumps.
// Connections start unauthenticated; identity is established by the
// authenticate event carrying a previously-issued token.
func (h *Handler) HandleSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Origin checking is handled by the CORS middleware in front.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn)
	client.RemoteAddr = c.ClientIP()

	h.hub.Register(client)

	_ = client.Send(NewEvent(EventSystem, SystemPayload{
		Event: "connected",
		Data: map[string]interface{}{
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump() // blocks until disconnect

	h.service.HandleDisconnect(client)
}

// HandleOnlineUsers returns the ids of all currently-online users plus
// gateway counters. Admin only.
func (h *Handler) HandleOnlineUsers(c *gin.Context) {
	presence := h.service.Presence()

	users := make([]gin.H, 0)
	for _, userID := range presence.OnlineUsers() {
		since, _ := presence.OnlineSince(userID)
		users = append(users, gin.H{
			"user_id":      userID,
			"connections":  presence.ConnectionCount(userID),
			"online_since": since.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"users":     users,
		"total":     len(users),
		"metrics":   h.hub.Metrics().Snapshot(),
		"timestamp": time.Now().UTC(),
	})
}

// HandleOnlineStatus checks whether specific users are online.
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statuses := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		statuses[userID] = h.service.Presence().IsOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// HandleTestNotify queues a notification through the regular fan-out path.
// Admin only; used by the ops CLI to verify delivery end to end.
func (h *Handler) HandleTestNotify(c *gin.Context) {
	var req struct {
		RecipientID string `json:"recipient_id" binding:"required"`
		SenderID    string `json:"sender_id" binding:"required"`
		Type        string `json:"type" binding:"required"`
		Content     string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.service.Notifier().Notify(c.Request.Context(),
		req.RecipientID, req.SenderID,
		models.NotificationType(req.Type), Refs{}, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "queued",
		"recipient": req.RecipientID,
		"online":    h.service.Presence().IsOnline(req.RecipientID),
	})
}

// Shutdown closes every live connection. In-flight handlers finish on their
// own goroutines; persistence is never interrupted mid-write.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		for _, userID := range h.service.Presence().OnlineUsers() {
			for _, client := range h.service.Presence().Connections(userID) {
				client.Close()
			}
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
