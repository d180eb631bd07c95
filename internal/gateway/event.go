package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenfeed/backend/internal/models"
)

// FlexibleTime accepts both Unix millisecond timestamps and RFC3339 strings.
type FlexibleTime struct {
	time.Time
}

func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Event types on the client-to-server surface.
const (
	EventAuthenticate    = "authenticate"
	EventSendMessage     = "sendMessage"
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventMarkMessageRead = "markMessageRead"
	EventPing            = "ping"
)

// Event types on the server-to-client surface.
const (
	EventUserOnline         = "userOnline"
	EventUserOffline        = "userOffline"
	EventNewMessage         = "newMessage"
	EventNewNotification    = "newNotification"
	EventToastNotification  = "toastNotification"
	EventUnreadCount        = "unreadNotificationsCount"
	EventUserTyping         = "userTyping"
	EventUserStoppedTyping  = "userStoppedTyping"
	EventMessageRead        = "messageRead"
	EventPong               = "pong"
	EventError              = "error"
	EventSystem             = "system"
)

// Event is the wire envelope for every frame in both directions.
type Event struct {
	// Type identifies the event for routing.
	Type string `json:"type"`

	// Payload carries the event-specific data.
	Payload interface{} `json:"payload,omitempty"`

	// ID is an optional client-assigned identifier for acknowledgment.
	ID string `json:"id,omitempty"`

	// ReplyTo references the original event ID for responses.
	ReplyTo string `json:"reply_to,omitempty"`

	Timestamp FlexibleTime `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType string, payload interface{}) *Event {
	return &Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// Encode marshals the event to its wire form.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// NewErrorEvent creates an error event.
func NewErrorEvent(code, message string) *Event {
	return NewEvent(EventError, ErrorPayload{Code: code, Message: message})
}

// ParsePayload unmarshals the payload into a typed struct.
func (e *Event) ParsePayload(target interface{}) error {
	if e.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload.
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// ErrorPayload is sent only to the connection whose action failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthenticatePayload carries the identity token issued by the auth service.
type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// SendMessagePayload is the client request to send a conversation message.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text,omitempty"`
	Media          string `json:"media,omitempty"`
}

// TypingPayload names the conversation a typing signal applies to.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// MarkMessageReadPayload is the client request to append itself to a
// message's readBy set.
type MarkMessageReadPayload struct {
	MessageID string `json:"messageId"`
}

// PingPayload and PongPayload implement application-level latency probes.
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// NewMessagePayload is pushed to a conversation room after a successful persist.
type NewMessagePayload struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversation_id"`
	Sender         models.ProfileSummary `json:"sender"`
	Text           string                `json:"text,omitempty"`
	MediaURL       string                `json:"media_url,omitempty"`
	ReadBy         []string              `json:"read_by"`
	CreatedAt      time.Time             `json:"created_at"`
}

// NotificationPayload is pushed to the recipient's personal room.
type NotificationPayload struct {
	ID        string                  `json:"id"`
	Type      models.NotificationType `json:"notification_type"`
	Sender    models.ProfileSummary   `json:"sender"`
	Content   string                  `json:"content"`
	PostID    *string                 `json:"post_id,omitempty"`
	CommentID *string                 `json:"comment_id,omitempty"`
	MessageID *string                 `json:"message_id,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}

// ToastPayload is the human-readable companion to newNotification.
type ToastPayload struct {
	Message string                  `json:"message"`
	Type    models.NotificationType `json:"type"`
}

// UnreadCountPayload carries a freshly computed unread-notification count.
type UnreadCountPayload struct {
	Count int64 `json:"count"`
}

// PresencePayload announces a user going online or offline.
type PresencePayload struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// UserTypingPayload is relayed to the other members of a conversation room.
type UserTypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// MessageReadPayload is relayed to a conversation room on first read.
type MessageReadPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// SystemPayload carries connection lifecycle events.
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
