package repository

import (
	"context"
	"errors"

	"github.com/lumenfeed/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository handles all database operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation, participantIDs []string) error
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	AddParticipant(ctx context.Context, conversationID, userID string) error
	SetLastMessage(ctx context.Context, conversationID, messageID string) error
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation, participantIDs []string) error {
	if conversation == nil || len(participantIDs) == 0 {
		return ErrInvalidInput
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conversation).Error; err != nil {
			return err
		}
		for _, userID := range participantIDs {
			participant := models.ConversationParticipant{
				ConversationID: conversation.ID,
				UserID:         userID,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participant).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *conversationRepository) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Participants.User").
		Where("id = ?", conversationID).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Preload("Participants").
		Preload("Participants.User").
		Preload("LastMessage").
		Order("conversations.updated_at DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *conversationRepository) AddParticipant(ctx context.Context, conversationID, userID string) error {
	participant := models.ConversationParticipant{
		ConversationID: conversationID,
		UserID:         userID,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&participant).Error
}

func (r *conversationRepository) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_id", messageID).Error
}

// MarkConversationRead records the user as a reader of every message in the
// conversation they have not read yet, and returns how many rows were added.
func (r *conversationRepository) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	var messageIDs []string
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Where("sender_id <> ?", userID).
		Where("id NOT IN (?)", r.db.Model(&models.MessageRead{}).
			Select("message_id").
			Where("user_id = ?", userID)).
		Pluck("id", &messageIDs).Error
	if err != nil {
		return 0, err
	}
	if len(messageIDs) == 0 {
		return 0, nil
	}

	reads := make([]models.MessageRead, 0, len(messageIDs))
	for _, id := range messageIDs {
		reads = append(reads, models.MessageRead{MessageID: id, UserID: userID})
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&reads)
	return result.RowsAffected, result.Error
}
