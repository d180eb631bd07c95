package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is a message thread between two or more participants.
type Conversation struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	IsGroup   bool    `gorm:"default:false" json:"is_group"`
	GroupName string  `json:"group_name,omitempty"`
	GroupIcon string  `gorm:"type:text" json:"group_icon,omitempty"`

	// LastMessageID points at the most recent message for inbox ordering.
	LastMessageID *string  `gorm:"type:uuid" json:"last_message_id,omitempty"`
	LastMessage   *Message `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationParticipant is one membership row. The composite primary key
// makes concurrent adds of the same participant idempotent.
type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;type:uuid" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	User           *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// ParticipantIDs returns the user ids of all participants.
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
