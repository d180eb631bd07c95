package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account. Authentication internals (password, email
// verification, sessions) live in the auth service; the gateway only needs
// identity, profile summary fields and the privacy flag.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `gorm:"type:text" json:"avatar_url"`
	Bio         string `gorm:"type:text" json:"bio"`

	// Private accounts require an accepted follow request before following.
	IsPrivate bool `gorm:"default:false" json:"is_private"`

	// Advisory presence, mirrored from the gateway for REST reads.
	IsOnline     bool       `gorm:"default:false" json:"is_online"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileSummary is the sender projection embedded in pushed messages and
// notifications.
type ProfileSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Summary returns the user's profile summary projection.
func (u *User) Summary() ProfileSummary {
	return ProfileSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// Follow is an established follower relationship.
type Follow struct {
	FollowerID string    `gorm:"primaryKey;type:uuid" json:"follower_id"`
	FolloweeID string    `gorm:"primaryKey;type:uuid" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// FollowRequest is a pending request to follow a private account.
type FollowRequest struct {
	RequesterID string    `gorm:"primaryKey;type:uuid" json:"requester_id"`
	TargetID    string    `gorm:"primaryKey;type:uuid" json:"target_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
