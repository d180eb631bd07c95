package repository

import (
	"context"
	"errors"

	"github.com/lumenfeed/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository handles all database operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	Get(ctx context.Context, messageID string) (*models.Message, error)
	ListForConversation(ctx context.Context, conversationID string, limit, offset int) ([]*models.Message, error)

	// AddReader appends userID to the message's readBy set. Returns true if a
	// row was inserted, false if the user had already read the message.
	AddReader(ctx context.Context, messageID, userID string) (bool, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	if message == nil {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) Get(ctx context.Context, messageID string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Reads").
		Preload("Sender").
		Where("id = ?", messageID).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ListForConversation(ctx context.Context, conversationID string, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Preload("Reads").
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, err
}

// AddReader uses an insert-or-ignore so concurrent set-adds from the gateway
// and the REST layer stay idempotent and order-independent.
func (r *messageRepository) AddReader(ctx context.Context, messageID, userID string) (bool, error) {
	read := models.MessageRead{MessageID: messageID, UserID: userID}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&read)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
