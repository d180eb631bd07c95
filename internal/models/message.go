package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message belongs to exactly one conversation. It is never edited or deleted
// by the gateway; the only mutation is appending reader rows.
type Message struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       string `gorm:"type:uuid;not null" json:"sender_id"`
	Sender         *User  `gorm:"foreignKey:SenderID" json:"sender,omitempty"`

	Text     string `gorm:"type:text" json:"text,omitempty"`
	MediaURL string `gorm:"type:text" json:"media_url,omitempty"`

	Reads []MessageRead `gorm:"foreignKey:MessageID" json:"reads,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageRead is one entry in a message's readBy set. The composite primary
// key gives set-add semantics: inserting the same reader twice is a no-op.
type MessageRead struct {
	MessageID string    `gorm:"primaryKey;type:uuid" json:"message_id"`
	UserID    string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	ReadAt    time.Time `gorm:"autoCreateTime" json:"read_at"`
}

// HasContent reports whether the message carries text or media.
func (m *Message) HasContent() bool {
	return m.Text != "" || m.MediaURL != ""
}

// ReadBy returns the user ids that have seen the message.
func (m *Message) ReadBy() []string {
	ids := make([]string, 0, len(m.Reads))
	for _, r := range m.Reads {
		ids = append(ids, r.UserID)
	}
	return ids
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
