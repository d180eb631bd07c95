// Package seed fills the database with development and test fixtures.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/models"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// SeedDev seeds the development database with realistic data
func (s *Seeder) SeedDev() error {
	logger.Log.Info("Creating users...")
	users, err := s.seedUsers(50)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	logger.Log.Info("Creating follow graph...")
	if err := s.seedFollows(users); err != nil {
		return fmt.Errorf("failed to seed follows: %w", err)
	}

	logger.Log.Info("Creating conversations and messages...")
	if err := s.seedConversations(users, 40); err != nil {
		return fmt.Errorf("failed to seed conversations: %w", err)
	}

	logger.Log.Info("Creating notifications...")
	if err := s.seedNotifications(users, 200); err != nil {
		return fmt.Errorf("failed to seed notifications: %w", err)
	}

	return nil
}

// SeedTest seeds the test database with a small deterministic fixture set.
func (s *Seeder) SeedTest() error {
	usernames := []string{"alice", "bob", "carol"}
	users := make([]*models.User, 0, len(usernames))
	for _, username := range usernames {
		user := &models.User{
			Username:    username,
			DisplayName: username,
		}
		if err := s.db.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create test user %s: %w", username, err)
		}
		users = append(users, user)
	}

	conversation := &models.Conversation{}
	if err := s.db.Create(conversation).Error; err != nil {
		return err
	}
	for _, user := range users[:2] {
		participant := models.ConversationParticipant{
			ConversationID: conversation.ID,
			UserID:         user.ID,
		}
		if err := s.db.Create(&participant).Error; err != nil {
			return err
		}
	}

	message := &models.Message{
		ConversationID: conversation.ID,
		SenderID:       users[0].ID,
		Text:           "hello from the fixtures",
		Reads:          []models.MessageRead{{UserID: users[0].ID}},
	}
	return s.db.Create(message).Error
}

// Clean removes all seeded data. Destructive; development only.
func (s *Seeder) Clean() error {
	tables := []interface{}{
		&models.Notification{},
		&models.MessageRead{},
		&models.Message{},
		&models.ConversationParticipant{},
		&models.Conversation{},
		&models.FollowRequest{},
		&models.Follow{},
		&models.User{},
	}
	for _, table := range tables {
		if err := s.db.Where("1 = 1").Delete(table).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedUsers(count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	taken := make(map[string]bool)

	for i := 0; i < count; i++ {
		username := gofakeit.Username()
		for taken[username] {
			username = gofakeit.Username()
		}
		taken[username] = true

		user := &models.User{
			Username:    username,
			DisplayName: gofakeit.Name(),
			Bio:         gofakeit.HipsterSentence(8),
			AvatarURL:   gofakeit.ImageURL(256, 256),
			IsPrivate:   rand.Intn(5) == 0,
		}
		if err := s.db.Create(user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	logger.Log.Info("Seeded users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Seeder) seedFollows(users []*models.User) error {
	created := 0
	for _, follower := range users {
		for i := 0; i < rand.Intn(8); i++ {
			followee := users[rand.Intn(len(users))]
			if followee.ID == follower.ID {
				continue
			}
			follow := models.Follow{FollowerID: follower.ID, FolloweeID: followee.ID}
			if err := s.db.FirstOrCreate(&follow, follow).Error; err != nil {
				return err
			}
			created++
		}
	}
	logger.Log.Info("Seeded follows", zap.Int("count", created))
	return nil
}

func (s *Seeder) seedConversations(users []*models.User, count int) error {
	for i := 0; i < count; i++ {
		a := users[rand.Intn(len(users))]
		b := users[rand.Intn(len(users))]
		if a.ID == b.ID {
			continue
		}

		conversation := &models.Conversation{}
		if err := s.db.Create(conversation).Error; err != nil {
			return err
		}
		for _, user := range []*models.User{a, b} {
			participant := models.ConversationParticipant{
				ConversationID: conversation.ID,
				UserID:         user.ID,
			}
			if err := s.db.Create(&participant).Error; err != nil {
				return err
			}
		}

		var lastID string
		for j := 0; j < 1+rand.Intn(10); j++ {
			sender := a
			if rand.Intn(2) == 0 {
				sender = b
			}
			message := &models.Message{
				ConversationID: conversation.ID,
				SenderID:       sender.ID,
				Text:           gofakeit.Sentence(3 + rand.Intn(12)),
				Reads:          []models.MessageRead{{UserID: sender.ID}},
			}
			if err := s.db.Create(message).Error; err != nil {
				return err
			}
			lastID = message.ID
		}

		if lastID != "" {
			err := s.db.Model(&models.Conversation{}).
				Where("id = ?", conversation.ID).
				Update("last_message_id", lastID).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Seeder) seedNotifications(users []*models.User, count int) error {
	types := []models.NotificationType{
		models.NotificationFollow,
		models.NotificationLike,
		models.NotificationComment,
		models.NotificationMention,
	}

	for i := 0; i < count; i++ {
		recipient := users[rand.Intn(len(users))]
		sender := users[rand.Intn(len(users))]
		if recipient.ID == sender.ID {
			continue
		}

		notification := &models.Notification{
			RecipientID: recipient.ID,
			SenderID:    sender.ID,
			Type:        types[rand.Intn(len(types))],
			Content:     fmt.Sprintf("%s sent you a notification", sender.Username),
			Read:        rand.Intn(3) > 0,
		}
		if err := s.db.Create(notification).Error; err != nil {
			return err
		}
	}
	return nil
}
