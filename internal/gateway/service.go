package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lumenfeed/backend/internal/apperr"
	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/models"
	"github.com/lumenfeed/backend/internal/repository"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// TokenValidator validates an identity token issued out-of-band and returns
// the user id it was issued for.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Service wires the gateway's event handlers to persistence and fan-out.
// Handlers run on each connection's reader goroutine, so a single
// connection's events are processed strictly in the order received while
// different connections proceed concurrently.
type Service struct {
	hub      *Hub
	presence *Registry
	notifier *Notifier
	tokens   TokenValidator

	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
}

// NewService creates the gateway service and registers its event handlers
// with the hub.
func NewService(
	hub *Hub,
	presence *Registry,
	notifier *Notifier,
	tokens TokenValidator,
	users repository.UserRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
) *Service {
	s := &Service{
		hub:           hub,
		presence:      presence,
		notifier:      notifier,
		tokens:        tokens,
		users:         users,
		conversations: conversations,
		messages:      messages,
	}
	s.registerHandlers()
	return s
}

func (s *Service) registerHandlers() {
	s.hub.RegisterHandler(EventAuthenticate, s.handleAuthenticate)
	s.hub.RegisterHandler(EventSendMessage, s.handleSendMessage)
	s.hub.RegisterHandler(EventTyping, s.handleTyping)
	s.hub.RegisterHandler(EventStopTyping, s.handleStopTyping)
	s.hub.RegisterHandler(EventMarkMessageRead, s.handleMarkMessageRead)
}

// Notifier exposes the fan-out component for REST collaborators.
func (s *Service) Notifier() *Notifier {
	return s.notifier
}

// Presence exposes the presence registry.
func (s *Service) Presence() *Registry {
	return s.presence
}

// Hub exposes the hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// handleAuthenticate validates the token, records presence, joins the
// connection to its personal room and to one room per conversation the user
// participates in, announces the user online (first connection only), and
// pushes the current unread count. On any lookup failure the event is
// dropped: no state change, no rooms joined, connection stays
// unauthenticated.
func (s *Service) handleAuthenticate(client *Client, event *Event) error {
	var payload AuthenticatePayload
	if err := event.ParsePayload(&payload); err != nil {
		return nil
	}

	userID, err := s.tokens.ValidateToken(payload.Token)
	if err != nil || userID == "" {
		logger.Log.Warn("Socket authentication rejected", zap.Error(err))
		return nil
	}
	if payload.UserID != "" && payload.UserID != userID {
		logger.Log.Warn("Socket authentication user mismatch",
			zap.String("claimed", payload.UserID),
			zap.String("token", userID))
		return nil
	}

	ctx := client.Context()
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		logger.Log.Warn("Socket authentication for unknown user",
			zap.String("user", userID),
			zap.Error(err))
		return nil
	}

	// A connection re-authenticating as a different user sheds its old
	// identity first, so the previous user's personal room and presence
	// entry never leak to the new one.
	if prev := client.UserID(); prev != "" && prev != user.ID {
		s.dropIdentity(client)
	}

	client.setUser(user.ID)
	first := s.presence.Add(user.ID, client)

	// Personal room plus one room per current conversation. On
	// re-authenticate this refreshes membership rather than duplicating it.
	s.hub.Join(PersonalRoom(user.ID), client)
	conversations, err := s.conversations.ListForUser(ctx, user.ID)
	if err != nil {
		logger.Log.Error("Failed to list conversations at authenticate",
			zap.String("user", user.ID),
			zap.Error(err))
	} else {
		for _, conversation := range conversations {
			s.hub.Join(ConversationRoom(conversation.ID), client)
		}
	}

	if first {
		s.hub.Broadcast(NewEvent(EventUserOnline, PresencePayload{
			UserID:    user.ID,
			Timestamp: time.Now().UnixMilli(),
		}))
		go s.mirrorPresence(user.ID, true)
	}

	s.notifier.PushUnreadCount(ctx, user.ID)

	logger.Log.Info("Socket authenticated",
		zap.String("user", user.ID),
		zap.Int("conversations", len(conversations)),
		zap.Bool("first_connection", first))
	return nil
}

// HandleDisconnect removes the connection's presence entry and announces the
// user offline when their last connection drops. Idempotent; a no-op for
// connections that never authenticated.
func (s *Service) HandleDisconnect(client *Client) {
	userID, last := s.presence.Remove(client)
	if userID == "" {
		return
	}

	if last {
		s.hub.Broadcast(NewEvent(EventUserOffline, PresencePayload{
			UserID:    userID,
			Timestamp: time.Now().UnixMilli(),
		}))
		go s.mirrorPresence(userID, false)
	}

	logger.Log.Info("Socket disconnected",
		zap.String("user", userID),
		zap.Bool("last_connection", last))
}

// dropIdentity detaches a still-open connection from its current user:
// presence entry, personal room, conversation rooms. Broadcasts userOffline
// when the dropped entry was the user's last connection.
func (s *Service) dropIdentity(client *Client) {
	userID, last := s.presence.Remove(client)
	s.hub.LeaveAll(client)
	if userID == "" {
		return
	}

	if last {
		s.hub.Broadcast(NewEvent(EventUserOffline, PresencePayload{
			UserID:    userID,
			Timestamp: time.Now().UnixMilli(),
		}))
		go s.mirrorPresence(userID, false)
	}

	logger.Log.Info("Socket identity replaced",
		zap.String("previous_user", userID),
		zap.Bool("last_connection", last))
}

// mirrorPresence mirrors advisory presence into the users table so REST
// reads can show online indicators. Best effort.
func (s *Service) mirrorPresence(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.users.SetOnline(ctx, userID, online); err != nil {
		logger.Log.Warn("Failed to mirror presence",
			zap.String("user", userID),
			zap.Error(err))
	}
}

// handleSendMessage validates, persists and broadcasts a new conversation
// message, then fans out a notification to every other participant. The
// broadcast happens only after the persist succeeds, so a connected client
// never sees a message that a concurrent REST reader would not also find.
func (s *Service) handleSendMessage(client *Client, event *Event) error {
	senderID := client.UserID()
	if senderID == "" {
		client.SendError("not_authenticated", "Authenticate before sending messages")
		return nil
	}

	var payload SendMessagePayload
	if err := event.ParsePayload(&payload); err != nil {
		client.SendError("invalid_payload", "Malformed sendMessage payload")
		return nil
	}

	ctx := client.Context()
	message, err := s.SendMessage(ctx, senderID, payload.ConversationID, payload.Text, payload.Media)
	if err != nil {
		// Only the initiating connection learns about the failure.
		client.SendError(errorCode(err), err.Error())
		return nil
	}

	logger.Log.Debug("Message sent",
		zap.String("message", message.ID),
		zap.String("conversation", payload.ConversationID),
		zap.String("sender", senderID))
	return nil
}

// SendMessage is the message ingest path shared by the socket event and the
// REST send endpoint.
func (s *Service) SendMessage(ctx context.Context, senderID, conversationID, text, media string) (*models.Message, error) {
	if text == "" && media == "" {
		return nil, apperr.Validation("text", "a message must carry text or media")
	}

	conversation, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperr.NotFound("conversation")
		}
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		// A non-participant learns nothing beyond "not found".
		return nil, apperr.NotFound("conversation")
	}

	message := &models.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		Text:           text,
		MediaURL:       media,
		// The readBy set starts containing only the sender.
		Reads: []models.MessageRead{{UserID: senderID}},
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, apperr.Persistence("persist message", err)
	}
	if err := s.conversations.SetLastMessage(ctx, conversation.ID, message.ID); err != nil {
		return nil, apperr.Persistence("update conversation", err)
	}

	sender, err := s.notifier.ProfileSummary(ctx, senderID)
	if err != nil {
		return nil, err
	}

	s.hub.EmitToRoom(ConversationRoom(conversation.ID), NewEvent(EventNewMessage, NewMessagePayload{
		ID:             message.ID,
		ConversationID: conversation.ID,
		Sender:         sender,
		Text:           message.Text,
		MediaURL:       message.MediaURL,
		ReadBy:         []string{senderID},
		CreatedAt:      message.CreatedAt,
	}))

	content := MessagePreview(sender.Username, text)
	recipients := lo.Filter(conversation.ParticipantIDs(), func(id string, _ int) bool {
		return id != senderID
	})
	for _, recipientID := range recipients {
		if err := s.notifier.Notify(ctx, recipientID, senderID, models.NotificationMessage,
			Refs{MessageID: &message.ID}, content); err != nil {
			// Notification delivery failures are invisible to the sender;
			// the persisted message is the sender's success state.
			logger.Log.Error("Message notification fan-out failed",
				zap.String("recipient", recipientID),
				zap.String("message", message.ID),
				zap.Error(err))
		}
	}

	return message, nil
}

// handleTyping relays a typing signal to the other members of the
// conversation room. Ephemeral: nothing is persisted, no debouncing.
func (s *Service) handleTyping(client *Client, event *Event) error {
	return s.relayTyping(client, event, EventUserTyping)
}

func (s *Service) handleStopTyping(client *Client, event *Event) error {
	return s.relayTyping(client, event, EventUserStoppedTyping)
}

func (s *Service) relayTyping(client *Client, event *Event, outType string) error {
	userID := client.UserID()
	if userID == "" {
		return nil
	}

	var payload TypingPayload
	if err := event.ParsePayload(&payload); err != nil || payload.ConversationID == "" {
		return nil
	}

	room := ConversationRoom(payload.ConversationID)
	// Room isolation: a connection that never joined the room (not a
	// participant) cannot inject typing signals into it.
	if !s.hub.InRoom(room, client) {
		return nil
	}

	s.hub.EmitToRoomExcept(room, client, NewEvent(outType, UserTypingPayload{
		ConversationID: payload.ConversationID,
		UserID:         userID,
	}))
	return nil
}

// handleMarkMessageRead appends the user to the message's readBy set and
// broadcasts a read receipt on first add. Repeated calls are a no-op: no
// write, no duplicate broadcast.
func (s *Service) handleMarkMessageRead(client *Client, event *Event) error {
	userID := client.UserID()
	if userID == "" {
		return nil
	}

	var payload MarkMessageReadPayload
	if err := event.ParsePayload(&payload); err != nil || payload.MessageID == "" {
		return nil
	}

	ctx := client.Context()
	message, err := s.messages.Get(ctx, payload.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			logger.Log.Debug("markMessageRead for unknown message",
				zap.String("message", payload.MessageID),
				zap.String("user", userID))
			return nil
		}
		return err
	}

	added, err := s.messages.AddReader(ctx, message.ID, userID)
	if err != nil {
		return apperr.Persistence("append reader", err)
	}
	if !added {
		return nil
	}

	s.hub.EmitToRoom(ConversationRoom(message.ConversationID), NewEvent(EventMessageRead, MessageReadPayload{
		MessageID: message.ID,
		UserID:    userID,
	}))
	return nil
}

// errorCode maps an error to the code sent in an error acknowledgment:
// lowercase, with the _ERROR suffix dropped ("validation", "not_found").
func errorCode(err error) string {
	return strings.TrimSuffix(strings.ToLower(string(apperr.From(err).Code)), "_error")
}

// JoinConversation subscribes every listed user's live connections to a
// conversation's room. Called from the conversation-create path so users
// added mid-session receive realtime messages without reconnecting.
func (s *Service) JoinConversation(conversationID string, userIDs ...string) {
	room := ConversationRoom(conversationID)
	for _, userID := range userIDs {
		for _, client := range s.presence.Connections(userID) {
			s.hub.Join(room, client)
		}
	}
}
