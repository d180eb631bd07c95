package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType enumerates the events that produce notifications.
type NotificationType string

const (
	NotificationLike                  NotificationType = "like"
	NotificationComment               NotificationType = "comment"
	NotificationFollow                NotificationType = "follow"
	NotificationFollowRequest         NotificationType = "follow_request"
	NotificationFollowRequestAccepted NotificationType = "follow_request_accepted"
	NotificationMention               NotificationType = "mention"
	NotificationMessage               NotificationType = "message"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow,
		NotificationFollowRequest, NotificationFollowRequestAccepted,
		NotificationMention, NotificationMessage:
		return true
	}
	return false
}

// Notification is a persisted notification record. Created on a qualifying
// event, mutated only to set Read, deleted explicitly by the recipient.
type Notification struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	RecipientID string           `gorm:"type:uuid;not null;index:idx_notifications_recipient_read" json:"recipient_id"`
	SenderID    string           `gorm:"type:uuid;not null" json:"sender_id"`
	Sender      *User            `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Type        NotificationType `gorm:"not null" json:"type"`

	// Optional references to the triggering entity.
	PostID    *string `gorm:"type:uuid" json:"post_id,omitempty"`
	CommentID *string `gorm:"type:uuid" json:"comment_id,omitempty"`
	MessageID *string `gorm:"type:uuid" json:"message_id,omitempty"`

	Content string `gorm:"type:text" json:"content"`
	Read    bool   `gorm:"default:false;index:idx_notifications_recipient_read" json:"read"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
