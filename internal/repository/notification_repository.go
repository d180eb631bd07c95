package repository

import (
	"context"
	"errors"

	"github.com/lumenfeed/backend/internal/models"
	"gorm.io/gorm"
)

// NotificationRepository handles all database operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	Get(ctx context.Context, notificationID string) (*models.Notification, error)
	ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*models.Notification, error)

	MarkRead(ctx context.Context, notificationID, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, notificationID, recipientID string) error
	DeleteAllForRecipient(ctx context.Context, recipientID string) error
	DeleteFollowRequestNotification(ctx context.Context, senderID, recipientID string) error

	// CountUnread is always a fresh query; unread counts are derived, never cached.
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification == nil {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) Get(ctx context.Context, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("id = ?", notificationID).
		First(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) ListForRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	var notifications []*models.Notification
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	result := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true).Error
}

func (r *notificationRepository) Delete(ctx context.Context, notificationID, recipientID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", notificationID, recipientID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteAllForRecipient(ctx context.Context, recipientID string) error {
	return r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Delete(&models.Notification{}).Error
}

// DeleteFollowRequestNotification removes the pending follow_request
// notification when the requester cancels.
func (r *notificationRepository) DeleteFollowRequestNotification(ctx context.Context, senderID, recipientID string) error {
	return r.db.WithContext(ctx).
		Where("sender_id = ? AND recipient_id = ? AND type = ?",
			senderID, recipientID, models.NotificationFollowRequest).
		Delete(&models.Notification{}).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}
