package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lumenfeed/backend/internal/models"
	"github.com/lumenfeed/backend/internal/repository"
)

// stubTokens maps tokens to user ids without real signing.
type stubTokens struct {
	byToken map[string]string
}

func (s *stubTokens) ValidateToken(token string) (string, error) {
	if id, ok := s.byToken[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type ServiceTestSuite struct {
	suite.Suite

	db       *gorm.DB
	hub      *Hub
	presence *Registry
	notifier *Notifier
	service  *Service
	tokens   *stubTokens

	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	notifications repository.NotificationRepository

	alice *models.User
	bob   *models.User
	carol *models.User
}

func (s *ServiceTestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.FollowRequest{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
		&models.Notification{},
	))
	s.db = db

	s.users = repository.NewUserRepository(db)
	s.conversations = repository.NewConversationRepository(db)
	s.messages = repository.NewMessageRepository(db)
	s.notifications = repository.NewNotificationRepository(db)

	s.hub = NewHub()
	s.presence = NewRegistry()
	s.notifier = NewNotifier(s.hub, s.presence, s.notifications, s.users, nil)
	s.tokens = &stubTokens{byToken: make(map[string]string)}
	s.service = NewService(s.hub, s.presence, s.notifier, s.tokens, s.users, s.conversations, s.messages)

	s.alice = s.createUser("alice")
	s.bob = s.createUser("bob")
	s.carol = s.createUser("carol")
}

func (s *ServiceTestSuite) createUser(username string) *models.User {
	user := &models.User{Username: username, DisplayName: username}
	s.Require().NoError(s.users.CreateUser(context.Background(), user))
	s.tokens.byToken["token-"+username] = user.ID
	return user
}

// connect registers a connection and authenticates it as the given user,
// draining the resulting events so tests start from a clean buffer.
func (s *ServiceTestSuite) connect(user *models.User) *Client {
	client := s.connectAnonymous()
	s.authenticate(client, user)
	drainEvents(client)
	return client
}

func (s *ServiceTestSuite) connectAnonymous() *Client {
	client := NewClient(s.hub, nil)
	s.hub.Register(client)
	return client
}

func (s *ServiceTestSuite) authenticate(client *Client, user *models.User) {
	handler, ok := s.hub.GetHandler(EventAuthenticate)
	s.Require().True(ok)
	s.Require().NoError(handler(client, NewEvent(EventAuthenticate, AuthenticatePayload{
		Token: "token-" + user.Username,
	})))
}

func (s *ServiceTestSuite) dispatch(client *Client, eventType string, payload interface{}) {
	handler, ok := s.hub.GetHandler(eventType)
	s.Require().True(ok)
	s.Require().NoError(handler(client, NewEvent(eventType, payload)))
}

func (s *ServiceTestSuite) createConversation(userIDs ...string) *models.Conversation {
	conversation := &models.Conversation{}
	s.Require().NoError(s.conversations.Create(context.Background(), conversation, userIDs))
	return conversation
}

func eventsOfType(events []Event, eventType string) []Event {
	var out []Event
	for _, event := range events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (s *ServiceTestSuite) TestAuthenticateJoinsRooms() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)

	client := s.connectAnonymous()
	s.authenticate(client, s.alice)

	s.Equal(s.alice.ID, client.UserID())
	s.True(s.hub.InRoom(PersonalRoom(s.alice.ID), client))
	s.True(s.hub.InRoom(ConversationRoom(conversation.ID), client))

	events := drainEvents(client)
	counts := eventsOfType(events, EventUnreadCount)
	s.Require().Len(counts, 1)

	var payload UnreadCountPayload
	s.Require().NoError(counts[0].ParsePayload(&payload))
	s.Equal(int64(0), payload.Count)
}

func (s *ServiceTestSuite) TestAuthenticateInvalidToken() {
	client := s.connectAnonymous()
	handler, _ := s.hub.GetHandler(EventAuthenticate)
	s.NoError(handler(client, NewEvent(EventAuthenticate, AuthenticatePayload{Token: "bogus"})))

	s.Empty(client.UserID())
	s.False(s.presence.IsOnline(s.alice.ID))
	s.Empty(drainEvents(client))
}

func (s *ServiceTestSuite) TestAuthenticateUserMismatch() {
	client := s.connectAnonymous()
	handler, _ := s.hub.GetHandler(EventAuthenticate)
	s.NoError(handler(client, NewEvent(EventAuthenticate, AuthenticatePayload{
		UserID: s.bob.ID,
		Token:  "token-alice",
	})))

	s.Empty(client.UserID())
	s.False(s.presence.IsOnline(s.alice.ID))
}

func (s *ServiceTestSuite) TestOnlineBroadcastOnFirstConnectionOnly() {
	observer := s.connect(s.bob)

	first := s.connectAnonymous()
	s.authenticate(first, s.alice)

	online := eventsOfType(drainEvents(observer), EventUserOnline)
	s.Require().Len(online, 1)
	var payload PresencePayload
	s.Require().NoError(online[0].ParsePayload(&payload))
	s.Equal(s.alice.ID, payload.UserID)

	// Second device: no second announcement
	second := s.connectAnonymous()
	s.authenticate(second, s.alice)
	s.Empty(eventsOfType(drainEvents(observer), EventUserOnline))
	s.Equal(2, s.presence.ConnectionCount(s.alice.ID))
}

func (s *ServiceTestSuite) TestOfflineOnLastDisconnectOnly() {
	observer := s.connect(s.bob)

	first := s.connect(s.alice)
	second := s.connect(s.alice)
	drainEvents(observer)

	s.hub.Unregister(first)
	s.service.HandleDisconnect(first)
	s.Empty(eventsOfType(drainEvents(observer), EventUserOffline))
	s.True(s.presence.IsOnline(s.alice.ID))

	s.hub.Unregister(second)
	s.service.HandleDisconnect(second)
	offline := eventsOfType(drainEvents(observer), EventUserOffline)
	s.Require().Len(offline, 1)
	s.False(s.presence.IsOnline(s.alice.ID))
}

func (s *ServiceTestSuite) TestReauthenticateRefreshesMembership() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	observer := s.connect(s.bob)

	client := s.connect(s.alice)
	drainEvents(observer) // alice's online announcement

	s.authenticate(client, s.alice)
	drainEvents(client)

	// Membership refreshed, not duplicated; no second online announcement.
	s.Equal(1, s.hub.RoomSize(PersonalRoom(s.alice.ID)))
	s.Equal(2, s.hub.RoomSize(ConversationRoom(conversation.ID)))
	s.Empty(eventsOfType(drainEvents(observer), EventUserOnline))
	s.Equal(1, s.presence.ConnectionCount(s.alice.ID))
}

func (s *ServiceTestSuite) TestReauthenticateAsDifferentUserShedsOldIdentity() {
	conversation := s.createConversation(s.alice.ID, s.carol.ID)
	observer := s.connect(s.carol)

	client := s.connect(s.alice)
	drainEvents(observer) // alice's online announcement

	s.authenticate(client, s.bob)
	drainEvents(client)

	// Alice's rooms and presence entry are gone; the connection is bob's now.
	s.False(s.hub.InRoom(PersonalRoom(s.alice.ID), client))
	s.False(s.hub.InRoom(ConversationRoom(conversation.ID), client))
	s.True(s.hub.InRoom(PersonalRoom(s.bob.ID), client))
	s.False(s.presence.IsOnline(s.alice.ID))
	s.True(s.presence.IsOnline(s.bob.ID))

	events := drainEvents(observer)
	s.Len(eventsOfType(events, EventUserOffline), 1)
	s.Len(eventsOfType(events, EventUserOnline), 1)

	// A notification for alice is stored but never reaches the connection.
	err := s.notifier.Notify(context.Background(), s.alice.ID, s.carol.ID,
		models.NotificationFollow, Refs{}, "")
	s.Require().NoError(err)
	s.Empty(eventsOfType(drainEvents(client), EventNewNotification))

	count, err := s.notifications.CountUnread(context.Background(), s.alice.ID)
	s.Require().NoError(err)
	s.EqualValues(1, count)
}

func (s *ServiceTestSuite) TestSendMessageBroadcastsAndNotifies() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	alice := s.connect(s.alice)
	bob := s.connect(s.bob)

	s.dispatch(alice, EventSendMessage, SendMessagePayload{
		ConversationID: conversation.ID,
		Text:           "hello bob",
	})

	// Recipient sees the message, the notification, the toast and a fresh count.
	bobEvents := drainEvents(bob)
	messages := eventsOfType(bobEvents, EventNewMessage)
	s.Require().Len(messages, 1)

	var messagePayload NewMessagePayload
	s.Require().NoError(messages[0].ParsePayload(&messagePayload))
	s.Equal("hello bob", messagePayload.Text)
	s.Equal("alice", messagePayload.Sender.Username)
	s.Equal([]string{s.alice.ID}, messagePayload.ReadBy)

	notifications := eventsOfType(bobEvents, EventNewNotification)
	s.Require().Len(notifications, 1)
	var notificationPayload NotificationPayload
	s.Require().NoError(notifications[0].ParsePayload(&notificationPayload))
	s.Equal("alice sent you a message: hello bob", notificationPayload.Content)

	s.Len(eventsOfType(bobEvents, EventToastNotification), 1)
	counts := eventsOfType(bobEvents, EventUnreadCount)
	s.Require().Len(counts, 1)
	var countPayload UnreadCountPayload
	s.Require().NoError(counts[0].ParsePayload(&countPayload))
	s.Equal(int64(1), countPayload.Count)

	// Sender sees the room broadcast but never a notification about their own message.
	aliceEvents := drainEvents(alice)
	s.Len(eventsOfType(aliceEvents, EventNewMessage), 1)
	s.Empty(eventsOfType(aliceEvents, EventNewNotification))

	// Persisted before broadcast: the message and its seeded read row exist.
	stored, err := s.messages.Get(context.Background(), messagePayload.ID)
	s.Require().NoError(err)
	s.Equal([]string{s.alice.ID}, stored.ReadBy())

	refreshed, err := s.conversations.Get(context.Background(), conversation.ID)
	s.Require().NoError(err)
	s.Require().NotNil(refreshed.LastMessageID)
	s.Equal(stored.ID, *refreshed.LastMessageID)
}

func (s *ServiceTestSuite) TestSendMessageMessagePreviewTruncated() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	alice := s.connect(s.alice)
	bob := s.connect(s.bob)

	long := ""
	for i := 0; i < 8; i++ {
		long += "0123456789"
	}
	s.dispatch(alice, EventSendMessage, SendMessagePayload{
		ConversationID: conversation.ID,
		Text:           long,
	})

	notifications := eventsOfType(drainEvents(bob), EventNewNotification)
	s.Require().Len(notifications, 1)
	var payload NotificationPayload
	s.Require().NoError(notifications[0].ParsePayload(&payload))
	s.Equal("alice sent you a message: "+long[:50]+"...", payload.Content)
}

func (s *ServiceTestSuite) TestSendMessageOfflineRecipientStored() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	alice := s.connect(s.alice)

	s.dispatch(alice, EventSendMessage, SendMessagePayload{
		ConversationID: conversation.ID,
		Text:           "are you there?",
	})

	// Bob is offline: the notification is stored, nothing is pushed.
	count, err := s.notifications.CountUnread(context.Background(), s.bob.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	// it greets him as an unread count at his next authenticate
	bob := s.connectAnonymous()
	s.authenticate(bob, s.bob)
	counts := eventsOfType(drainEvents(bob), EventUnreadCount)
	s.Require().Len(counts, 1)
	var payload UnreadCountPayload
	s.Require().NoError(counts[0].ParsePayload(&payload))
	s.Equal(int64(1), payload.Count)
}

func (s *ServiceTestSuite) TestSendMessageRequiresContent() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	alice := s.connect(s.alice)

	s.dispatch(alice, EventSendMessage, SendMessagePayload{ConversationID: conversation.ID})

	errors := eventsOfType(drainEvents(alice), EventError)
	s.Require().Len(errors, 1)
	var payload ErrorPayload
	s.Require().NoError(errors[0].ParsePayload(&payload))
	s.Equal("validation", payload.Code)

	var total int64
	s.db.Model(&models.Message{}).Count(&total)
	s.Zero(total)
}

func (s *ServiceTestSuite) TestSendMessageNonParticipant() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	carol := s.connect(s.carol)
	bob := s.connect(s.bob)

	s.dispatch(carol, EventSendMessage, SendMessagePayload{
		ConversationID: conversation.ID,
		Text:           "let me in",
	})

	// A non-participant learns nothing beyond "not found" and nobody else
	// hears a thing.
	errors := eventsOfType(drainEvents(carol), EventError)
	s.Require().Len(errors, 1)
	var payload ErrorPayload
	s.Require().NoError(errors[0].ParsePayload(&payload))
	s.Equal("not_found", payload.Code)
	s.Empty(drainEvents(bob))
}

func (s *ServiceTestSuite) TestSendMessageUnauthenticated() {
	client := s.connectAnonymous()
	s.dispatch(client, EventSendMessage, SendMessagePayload{ConversationID: "any", Text: "hi"})

	errors := eventsOfType(drainEvents(client), EventError)
	s.Require().Len(errors, 1)
	var payload ErrorPayload
	s.Require().NoError(errors[0].ParsePayload(&payload))
	s.Equal("not_authenticated", payload.Code)
}

func (s *ServiceTestSuite) TestMarkMessageReadIdempotent() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	alice := s.connect(s.alice)
	bob := s.connect(s.bob)

	message, err := s.service.SendMessage(context.Background(), s.alice.ID, conversation.ID, "read me", "")
	s.Require().NoError(err)
	drainEvents(alice)
	drainEvents(bob)

	s.dispatch(bob, EventMarkMessageRead, MarkMessageReadPayload{MessageID: message.ID})

	reads := eventsOfType(drainEvents(alice), EventMessageRead)
	s.Require().Len(reads, 1)
	var payload MessageReadPayload
	s.Require().NoError(reads[0].ParsePayload(&payload))
	s.Equal(message.ID, payload.MessageID)
	s.Equal(s.bob.ID, payload.UserID)

	// Marking again: no write, no duplicate broadcast.
	s.dispatch(bob, EventMarkMessageRead, MarkMessageReadPayload{MessageID: message.ID})
	s.Empty(eventsOfType(drainEvents(alice), EventMessageRead))

	stored, err := s.messages.Get(context.Background(), message.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.alice.ID, s.bob.ID}, stored.ReadBy())
}

func (s *ServiceTestSuite) TestMarkMessageReadUnknownMessage() {
	alice := s.connect(s.alice)
	s.dispatch(alice, EventMarkMessageRead, MarkMessageReadPayload{MessageID: uuid.NewString()})
	s.Empty(drainEvents(alice))
}

func (s *ServiceTestSuite) TestTypingRelay() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	bob := s.connect(s.bob)
	alice := s.connect(s.alice)
	drainEvents(bob) // alice's online announcement

	s.dispatch(alice, EventTyping, TypingPayload{ConversationID: conversation.ID})

	typing := eventsOfType(drainEvents(bob), EventUserTyping)
	s.Require().Len(typing, 1)
	var payload UserTypingPayload
	s.Require().NoError(typing[0].ParsePayload(&payload))
	s.Equal(s.alice.ID, payload.UserID)
	s.Equal(conversation.ID, payload.ConversationID)

	// The sender never sees their own relay.
	s.Empty(drainEvents(alice))

	s.dispatch(alice, EventStopTyping, TypingPayload{ConversationID: conversation.ID})
	s.Len(eventsOfType(drainEvents(bob), EventUserStoppedTyping), 1)
}

func (s *ServiceTestSuite) TestTypingRoomIsolation() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	carol := s.connect(s.carol)
	bob := s.connect(s.bob)
	drainEvents(carol) // bob's online announcement

	// Carol never joined the conversation room; her signal goes nowhere.
	s.dispatch(carol, EventTyping, TypingPayload{ConversationID: conversation.ID})
	s.Empty(drainEvents(bob))
}

func (s *ServiceTestSuite) TestNotifierSelfSuppression() {
	s.connect(s.alice)

	err := s.notifier.Notify(context.Background(), s.alice.ID, s.alice.ID,
		models.NotificationFollow, Refs{}, "")
	s.NoError(err)

	var total int64
	s.db.Model(&models.Notification{}).Count(&total)
	s.Zero(total)
}

func (s *ServiceTestSuite) TestNotifyDerivesContent() {
	bob := s.connect(s.bob)

	err := s.notifier.Notify(context.Background(), s.bob.ID, s.alice.ID,
		models.NotificationFollow, Refs{}, "")
	s.Require().NoError(err)

	events := drainEvents(bob)
	notifications := eventsOfType(events, EventNewNotification)
	s.Require().Len(notifications, 1)
	var payload NotificationPayload
	s.Require().NoError(notifications[0].ParsePayload(&payload))
	s.Equal("alice started following you", payload.Content)
	s.Equal(models.NotificationFollow, payload.Type)
	s.False(payload.Read)

	s.Len(eventsOfType(events, EventToastNotification), 1)
	s.Len(eventsOfType(events, EventUnreadCount), 1)
}

func (s *ServiceTestSuite) TestNotifyInvalidType() {
	err := s.notifier.Notify(context.Background(), s.bob.ID, s.alice.ID,
		models.NotificationType("carrier_pigeon"), Refs{}, "")
	s.Error(err)

	var total int64
	s.db.Model(&models.Notification{}).Count(&total)
	s.Zero(total)
}

func (s *ServiceTestSuite) TestJoinConversationMidSession() {
	alice := s.connect(s.alice)
	bob := s.connect(s.bob)

	// Conversation created while both are already connected.
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	s.service.JoinConversation(conversation.ID, s.alice.ID, s.bob.ID)

	s.dispatch(alice, EventSendMessage, SendMessagePayload{
		ConversationID: conversation.ID,
		Text:           "no reconnect needed",
	})

	s.Len(eventsOfType(drainEvents(bob), EventNewMessage), 1)
}

func (s *ServiceTestSuite) TestPushUnreadCountOffline() {
	// No connection: nothing to push, nothing panics.
	s.notifier.PushUnreadCount(context.Background(), s.alice.ID)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
