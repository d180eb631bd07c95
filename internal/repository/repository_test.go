package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lumenfeed/backend/internal/models"
)

type RepositoryTestSuite struct {
	suite.Suite

	db  *gorm.DB
	ctx context.Context

	users         UserRepository
	conversations ConversationRepository
	messages      MessageRepository
	notifications NotificationRepository

	alice *models.User
	bob   *models.User
}

func (s *RepositoryTestSuite) SetupTest() {
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
	s.ctx = context.Background()
	s.users = NewUserRepository(db)
	s.conversations = NewConversationRepository(db)
	s.messages = NewMessageRepository(db)
	s.notifications = NewNotificationRepository(db)

	s.alice = &models.User{Username: "alice", DisplayName: "Alice"}
	s.bob = &models.User{Username: "bob", DisplayName: "Bob"}
	s.Require().NoError(s.users.CreateUser(s.ctx, s.alice))
	s.Require().NoError(s.users.CreateUser(s.ctx, s.bob))
}

func (s *RepositoryTestSuite) createConversation(userIDs ...string) *models.Conversation {
	conversation := &models.Conversation{}
	s.Require().NoError(s.conversations.Create(s.ctx, conversation, userIDs))
	return conversation
}

func (s *RepositoryTestSuite) createMessage(conversationID, senderID, text string) *models.Message {
	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Reads:          []models.MessageRead{{UserID: senderID}},
	}
	s.Require().NoError(s.messages.Create(s.ctx, message))
	return message
}

func (s *RepositoryTestSuite) TestUserLookup() {
	found, err := s.users.GetUser(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Equal("alice", found.Username)

	// Case-insensitive username lookup
	found, err = s.users.GetUserByUsername(s.ctx, "ALICE")
	s.Require().NoError(err)
	s.Equal(s.alice.ID, found.ID)

	_, err = s.users.GetUser(s.ctx, uuid.NewString())
	s.ErrorIs(err, ErrUserNotFound)
}

func (s *RepositoryTestSuite) TestSetOnline() {
	s.Require().NoError(s.users.SetOnline(s.ctx, s.alice.ID, true))

	found, err := s.users.GetUser(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.True(found.IsOnline)

	s.Require().NoError(s.users.SetOnline(s.ctx, s.alice.ID, false))
	found, err = s.users.GetUser(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.False(found.IsOnline)
}

func (s *RepositoryTestSuite) TestFollowIdempotent() {
	s.Require().NoError(s.users.CreateFollow(s.ctx, s.alice.ID, s.bob.ID))
	// Following twice never errors or duplicates
	s.Require().NoError(s.users.CreateFollow(s.ctx, s.alice.ID, s.bob.ID))

	following, err := s.users.IsFollowing(s.ctx, s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	s.True(following)

	var total int64
	s.db.Model(&models.Follow{}).Count(&total)
	s.Equal(int64(1), total)

	s.Require().NoError(s.users.DeleteFollow(s.ctx, s.alice.ID, s.bob.ID))
	following, err = s.users.IsFollowing(s.ctx, s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	s.False(following)
}

func (s *RepositoryTestSuite) TestFollowRequests() {
	s.Require().NoError(s.users.CreateFollowRequest(s.ctx, s.alice.ID, s.bob.ID))
	s.Require().NoError(s.users.CreateFollowRequest(s.ctx, s.alice.ID, s.bob.ID))

	has, err := s.users.HasFollowRequest(s.ctx, s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	s.True(has)

	s.Require().NoError(s.users.DeleteFollowRequest(s.ctx, s.alice.ID, s.bob.ID))
	has, err = s.users.HasFollowRequest(s.ctx, s.alice.ID, s.bob.ID)
	s.Require().NoError(err)
	s.False(has)
}

func (s *RepositoryTestSuite) TestConversationCreateAndGet() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)

	found, err := s.conversations.Get(s.ctx, conversation.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.alice.ID, s.bob.ID}, found.ParticipantIDs())
	s.True(found.HasParticipant(s.alice.ID))
	s.False(found.HasParticipant(uuid.NewString()))

	_, err = s.conversations.Get(s.ctx, uuid.NewString())
	s.ErrorIs(err, ErrConversationNotFound)
}

func (s *RepositoryTestSuite) TestConversationListForUser() {
	first := s.createConversation(s.alice.ID, s.bob.ID)
	second := s.createConversation(s.alice.ID, s.bob.ID)

	// Touch the first conversation so it sorts to the top
	time.Sleep(10 * time.Millisecond)
	message := s.createMessage(first.ID, s.bob.ID, "bump")
	s.Require().NoError(s.conversations.SetLastMessage(s.ctx, first.ID, message.ID))

	list, err := s.conversations.ListForUser(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ID)
	s.Equal(second.ID, list[1].ID)
	s.Require().NotNil(list[0].LastMessage)
	s.Equal("bump", list[0].LastMessage.Text)
}

func (s *RepositoryTestSuite) TestIsParticipant() {
	conversation := s.createConversation(s.alice.ID)

	ok, err := s.conversations.IsParticipant(s.ctx, conversation.ID, s.alice.ID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.conversations.IsParticipant(s.ctx, conversation.ID, s.bob.ID)
	s.Require().NoError(err)
	s.False(ok)

	// AddParticipant is idempotent
	s.Require().NoError(s.conversations.AddParticipant(s.ctx, conversation.ID, s.bob.ID))
	s.Require().NoError(s.conversations.AddParticipant(s.ctx, conversation.ID, s.bob.ID))
	ok, err = s.conversations.IsParticipant(s.ctx, conversation.ID, s.bob.ID)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RepositoryTestSuite) TestMessageListNewestFirst() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	for i := 0; i < 3; i++ {
		s.createMessage(conversation.ID, s.alice.ID, fmt.Sprintf("msg %d", i))
		time.Sleep(5 * time.Millisecond)
	}

	messages, err := s.messages.ListForConversation(s.ctx, conversation.ID, 2, 0)
	s.Require().NoError(err)
	s.Require().Len(messages, 2)
	s.Equal("msg 2", messages[0].Text)
	s.Equal("msg 1", messages[1].Text)

	messages, err = s.messages.ListForConversation(s.ctx, conversation.ID, 2, 2)
	s.Require().NoError(err)
	s.Require().Len(messages, 1)
	s.Equal("msg 0", messages[0].Text)
}

func (s *RepositoryTestSuite) TestAddReaderIdempotent() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	message := s.createMessage(conversation.ID, s.alice.ID, "read me")

	added, err := s.messages.AddReader(s.ctx, message.ID, s.bob.ID)
	s.Require().NoError(err)
	s.True(added)

	// Second add reports no change
	added, err = s.messages.AddReader(s.ctx, message.ID, s.bob.ID)
	s.Require().NoError(err)
	s.False(added)

	found, err := s.messages.Get(s.ctx, message.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.alice.ID, s.bob.ID}, found.ReadBy())
}

func (s *RepositoryTestSuite) TestMarkConversationRead() {
	conversation := s.createConversation(s.alice.ID, s.bob.ID)
	s.createMessage(conversation.ID, s.alice.ID, "one")
	s.createMessage(conversation.ID, s.alice.ID, "two")
	// Bob's own message must not count against him
	s.createMessage(conversation.ID, s.bob.ID, "three")

	marked, err := s.conversations.MarkConversationRead(s.ctx, conversation.ID, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), marked)

	// Everything already read: nothing to do
	marked, err = s.conversations.MarkConversationRead(s.ctx, conversation.ID, s.bob.ID)
	s.Require().NoError(err)
	s.Zero(marked)
}

func (s *RepositoryTestSuite) TestNotificationLifecycle() {
	first := &models.Notification{
		RecipientID: s.bob.ID,
		SenderID:    s.alice.ID,
		Type:        models.NotificationFollow,
		Content:     "alice started following you",
	}
	s.Require().NoError(s.notifications.Create(s.ctx, first))

	second := &models.Notification{
		RecipientID: s.bob.ID,
		SenderID:    s.alice.ID,
		Type:        models.NotificationMessage,
		Content:     "alice sent you a message: hi",
	}
	s.Require().NoError(s.notifications.Create(s.ctx, second))

	count, err := s.notifications.CountUnread(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	list, err := s.notifications.ListForRecipient(s.ctx, s.bob.ID, 10, 0)
	s.Require().NoError(err)
	s.Len(list, 2)

	s.Require().NoError(s.notifications.MarkRead(s.ctx, first.ID, s.bob.ID))
	count, err = s.notifications.CountUnread(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	s.Require().NoError(s.notifications.MarkAllRead(s.ctx, s.bob.ID))
	count, err = s.notifications.CountUnread(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Zero(count)

	s.Require().NoError(s.notifications.Delete(s.ctx, first.ID, s.bob.ID))
	s.ErrorIs(s.notifications.Delete(s.ctx, first.ID, s.bob.ID), ErrNotificationNotFound)

	s.Require().NoError(s.notifications.DeleteAllForRecipient(s.ctx, s.bob.ID))
	list, err = s.notifications.ListForRecipient(s.ctx, s.bob.ID, 10, 0)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *RepositoryTestSuite) TestMarkReadScopedToRecipient() {
	notification := &models.Notification{
		RecipientID: s.bob.ID,
		SenderID:    s.alice.ID,
		Type:        models.NotificationFollow,
		Content:     "alice started following you",
	}
	s.Require().NoError(s.notifications.Create(s.ctx, notification))

	// Another user cannot mark or delete someone else's notification
	s.ErrorIs(s.notifications.MarkRead(s.ctx, notification.ID, s.alice.ID), ErrNotificationNotFound)
	s.ErrorIs(s.notifications.Delete(s.ctx, notification.ID, s.alice.ID), ErrNotificationNotFound)
}

func (s *RepositoryTestSuite) TestDeleteFollowRequestNotification() {
	pending := &models.Notification{
		RecipientID: s.bob.ID,
		SenderID:    s.alice.ID,
		Type:        models.NotificationFollowRequest,
		Content:     "alice requested to follow you",
	}
	s.Require().NoError(s.notifications.Create(s.ctx, pending))

	unrelated := &models.Notification{
		RecipientID: s.bob.ID,
		SenderID:    s.alice.ID,
		Type:        models.NotificationFollow,
		Content:     "alice started following you",
	}
	s.Require().NoError(s.notifications.Create(s.ctx, unrelated))

	s.Require().NoError(s.notifications.DeleteFollowRequestNotification(s.ctx, s.alice.ID, s.bob.ID))

	list, err := s.notifications.ListForRecipient(s.ctx, s.bob.ID, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(models.NotificationFollow, list[0].Type)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
