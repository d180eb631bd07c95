// Package gateway implements the realtime messaging and notification fan-out
// layer: the socket hub, room membership, presence registry, message ingest
// and the notification pipeline. Uses github.com/coder/websocket for the
// transport.
package gateway

import (
	"sync"

	"github.com/lumenfeed/backend/internal/logger"
	"go.uber.org/zap"
)

// ConversationRoom returns the room name for a conversation.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// PersonalRoom returns a user's personal room, used for direct pushes
// (notifications, unread counts, follow events) not tied to a conversation.
func PersonalRoom(userID string) string {
	return userID
}

// EventHandler processes incoming events of a specific type.
type EventHandler func(client *Client, event *Event) error

// Hub owns all live connections and the room membership table. Rooms exist
// only while they have members; membership has no meaning outside an active
// connection, so leaving is implicit on disconnect.
type Hub struct {
	mu sync.RWMutex

	// All registered connections.
	clients map[*Client]struct{}

	// Room name -> member connections.
	rooms map[string]map[*Client]struct{}

	// Reverse index so unregister can clean up room membership.
	memberships map[*Client]map[string]struct{}

	handlerMu sync.RWMutex
	handlers  map[string]EventHandler

	metrics *Metrics

	rateLimitConfig RateLimitConfig
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:         make(map[*Client]struct{}),
		rooms:           make(map[string]map[*Client]struct{}),
		memberships:     make(map[*Client]map[string]struct{}),
		handlers:        make(map[string]EventHandler),
		metrics:         NewMetrics(),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// RegisterHandler registers a handler for an event type.
func (h *Hub) RegisterHandler(eventType string, handler EventHandler) {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()
	h.handlers[eventType] = handler
}

// GetHandler returns the handler for an event type.
func (h *Hub) GetHandler(eventType string) (EventHandler, bool) {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	handler, ok := h.handlers[eventType]
	return handler, ok
}

// Register adds a connection to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	h.memberships[client] = make(map[string]struct{})
	h.metrics.ConnectionOpened()
}

// Unregister removes a connection from the hub and from every room it joined,
// then closes its send channel. Safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	for room := range h.memberships[client] {
		h.leaveLocked(room, client)
	}
	delete(h.memberships, client)

	close(client.send)
	h.metrics.ConnectionClosed()
}

// Join subscribes a connection to a room.
func (h *Hub) Join(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	h.memberships[client][room] = struct{}{}
}

// Leave removes a connection from a room.
func (h *Hub) Leave(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(room, client)
	if members, ok := h.memberships[client]; ok {
		delete(members, room)
	}
}

// LeaveAll removes a connection from every room it joined. The connection
// stays registered.
func (h *Hub) LeaveAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.memberships[client] {
		h.leaveLocked(room, client)
	}
	if _, ok := h.clients[client]; ok {
		h.memberships[client] = make(map[string]struct{})
	}
}

func (h *Hub) leaveLocked(room string, client *Client) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// InRoom reports whether a connection is a member of a room.
func (h *Hub) InRoom(room string, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][client]
	return ok
}

// RoomSize returns the current member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// EmitToRoom sends an event to every member of a room.
func (h *Hub) EmitToRoom(room string, event *Event) {
	h.emit(room, nil, event)
}

// EmitToRoomExcept sends an event to every member of a room except one
// connection, mirroring a sender-excluded relay.
func (h *Hub) EmitToRoomExcept(room string, except *Client, event *Event) {
	h.emit(room, except, event)
}

func (h *Hub) emit(room string, except *Client, event *Event) {
	data, err := event.Encode()
	if err != nil {
		logger.Log.Error("Failed to encode event", zap.String("type", event.Type), zap.Error(err))
		h.metrics.Error()
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if client == except {
			continue
		}
		h.deliverLocked(client, data, event.Type)
	}
}

// Broadcast sends an event to every connection, authenticated or not.
// Used for the global userOnline/userOffline announcements.
func (h *Hub) Broadcast(event *Event) {
	data, err := event.Encode()
	if err != nil {
		logger.Log.Error("Failed to encode broadcast", zap.String("type", event.Type), zap.Error(err))
		h.metrics.Error()
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		h.deliverLocked(client, data, event.Type)
	}
}

// deliverLocked enqueues a frame without blocking the caller. A connection
// whose buffer is full is dropped; slow consumers must not stall the hub.
func (h *Hub) deliverLocked(client *Client, data []byte, eventType string) {
	select {
	case client.send <- data:
		h.metrics.EventSent(eventType)
	default:
		h.metrics.ConnectionDropped()
		go client.Close()
	}
}

// Metrics returns the hub's metrics.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetRateLimitConfig updates the per-connection rate limit applied to new clients.
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration.
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
