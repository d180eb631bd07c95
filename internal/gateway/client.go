package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lumenfeed/backend/internal/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Read deadline; the client must send something (ping at minimum) within it.
	readWait = 60 * time.Second

	// Send pings to peer with this period (must be less than readWait).
	pingPeriod = (readWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxEventSize = 64 * 1024

	sendBufferSize = 256
)

// RateLimitConfig defines the per-connection event rate limit.
type RateLimitConfig struct {
	MaxEventsPerSecond int
	BurstSize          int
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxEventsPerSecond: 10,
		BurstSize:          20,
	}
}

// RateLimiter implements a token bucket.
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a rate limiter allowing maxPerSecond with a burst.
func NewRateLimiter(maxPerSecond, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks whether an event is allowed and consumes a token.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Client is a single websocket connection. A connection starts
// unauthenticated; the authenticate event associates it with a user.
// All of a connection's events are processed in the order received, on the
// connection's own reader goroutine.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	// Buffered channel of outbound frames, closed by the hub on unregister.
	send chan []byte

	ConnectedAt time.Time
	RemoteAddr  string

	rateLimiter *RateLimiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	userID string
	closed bool
}

// NewClient creates a client for an accepted websocket connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		rateLimiter: NewRateLimiter(config.MaxEventsPerSecond, config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// UserID returns the authenticated user identity, or "" before authenticate.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// setUser associates the connection with an authenticated user.
func (c *Client) setUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// Context returns the connection's context, canceled on close.
func (c *Client) Context() context.Context {
	return c.ctx
}

// ReadPump pumps events from the websocket connection into the hub's
// handlers. Runs on the caller's goroutine and blocks until disconnect.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxEventSize)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		readCtx, readCancel := context.WithTimeout(c.ctx, readWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				logger.Log.Debug("Client disconnected normally", zap.String("user", c.UserID()))
			} else if c.ctx.Err() == nil {
				logger.Log.Warn("Read error for client", zap.String("user", c.UserID()), zap.Error(err))
				c.hub.metrics.Error()
			}
			return
		}

		if !c.rateLimiter.Allow() {
			c.SendError("rate_limited", "Too many events, please slow down")
			c.hub.metrics.Error()
			continue
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			logger.Log.Warn("Malformed event frame",
				zap.String("user", c.UserID()),
				zap.Error(err))
			// Malformed frames are dropped without an acknowledgment.
			continue
		}

		c.hub.metrics.EventReceived(event.Type)
		c.handleEvent(&event)
	}
}

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "server shutdown")
			return

		case data, ok := <-c.send:
			if !ok {
				// Hub closed the channel.
				c.conn.Close(websocket.StatusNormalClosure, "closing")
				return
			}

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()

			if err != nil {
				logger.Log.Warn("Write error for client", zap.String("user", c.UserID()), zap.Error(err))
				c.hub.metrics.Error()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()

			if err != nil {
				return
			}
		}
	}
}

// handleEvent routes incoming events. Handler failures are contained to this
// connection: the handler's error is acknowledged to the sender only.
func (c *Client) handleEvent(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = FlexibleTime{Time: time.Now().UTC()}
	}

	if event.Type == EventPing {
		c.handlePing(event)
		return
	}

	if handler, ok := c.hub.GetHandler(event.Type); ok {
		if err := handler(c, event); err != nil {
			logger.Log.Error("Event handler error",
				zap.String("type", event.Type),
				zap.String("user", c.UserID()),
				zap.Error(err))
			c.hub.metrics.Error()
			c.SendError("handler_error", fmt.Sprintf("Failed to process %s", event.Type))
		}
		return
	}

	logger.Log.Warn("Unknown event type",
		zap.String("user", c.UserID()),
		zap.String("type", event.Type))
	c.SendError("unknown_type", fmt.Sprintf("Unknown event type: %s", event.Type))
}

func (c *Client) handlePing(event *Event) {
	var ping PingPayload
	if err := event.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	pong := NewEvent(EventPong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    serverTime - ping.ClientTime,
	})
	if event.ID != "" {
		pong.ReplyTo = event.ID
	}

	// Best effort; the connection may be closing.
	_ = c.Send(pong)
}

// Send enqueues an event for this connection.
func (c *Client) Send(event *Event) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("client connection closed")
	}
	c.mu.RUnlock()

	data, err := event.Encode()
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		c.hub.metrics.EventSent(event.Type)
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("client shutting down")
	default:
		return fmt.Errorf("send buffer full")
	}
}

// SendError sends an error event to this connection only.
func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorEvent(code, message))
}

// Close tears down the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	c.cancel()
	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

// IsClosed reports whether the connection has been torn down.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
