package gateway

import (
	"context"
	"fmt"

	"github.com/lumenfeed/backend/internal/apperr"
	"github.com/lumenfeed/backend/internal/cache"
	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/models"
	"github.com/lumenfeed/backend/internal/repository"
	"go.uber.org/zap"
)

// previewLimit is how much of a message's text is quoted in its notification.
const previewLimit = 50

// Refs carries the optional references a notification can point at.
type Refs struct {
	PostID    *string
	CommentID *string
	MessageID *string
}

// Notifier is the single fan-out path for every qualifying event (message,
// follow, follow-request, accept, like, comment, mention). All delivery
// semantics live here: self-notify suppression, unconditional persistence,
// push-if-online, and the unread-count refresh that follows every push.
type Notifier struct {
	hub           *Hub
	presence      *Registry
	notifications repository.NotificationRepository
	users         repository.UserRepository
	profiles      *cache.ProfileCache
}

// NewNotifier creates the fan-out component. profiles may be nil.
func NewNotifier(
	hub *Hub,
	presence *Registry,
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	profiles *cache.ProfileCache,
) *Notifier {
	return &Notifier{
		hub:           hub,
		presence:      presence,
		notifications: notifications,
		users:         users,
		profiles:      profiles,
	}
}

// Notify persists a notification for the recipient and, if they are online,
// pushes it to their personal room followed by a refreshed unread count.
// A user is never notified of their own action; the check runs before
// anything is persisted. An empty content derives the user-facing string
// from the notification type and the sender's username.
func (n *Notifier) Notify(ctx context.Context, recipientID, senderID string, notifType models.NotificationType, refs Refs, content string) error {
	if recipientID == senderID {
		return nil
	}
	if !notifType.Valid() {
		return apperr.Validation("type", fmt.Sprintf("unknown notification type: %s", notifType))
	}

	sender, err := n.ProfileSummary(ctx, senderID)
	if err != nil {
		return err
	}

	if content == "" {
		content = contentFor(notifType, sender.Username)
	}

	notification := &models.Notification{
		RecipientID: recipientID,
		SenderID:    senderID,
		Type:        notifType,
		PostID:      refs.PostID,
		CommentID:   refs.CommentID,
		MessageID:   refs.MessageID,
		Content:     content,
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		return apperr.Persistence("create notification", err)
	}

	if n.presence.IsOnline(recipientID) {
		room := PersonalRoom(recipientID)
		n.hub.EmitToRoom(room, NewEvent(EventNewNotification, NotificationPayload{
			ID:        notification.ID,
			Type:      notification.Type,
			Sender:    sender,
			Content:   notification.Content,
			PostID:    notification.PostID,
			CommentID: notification.CommentID,
			MessageID: notification.MessageID,
			Read:      notification.Read,
			CreatedAt: notification.CreatedAt,
		}))
		n.hub.EmitToRoom(room, NewEvent(EventToastNotification, ToastPayload{
			Message: notification.Content,
			Type:    notification.Type,
		}))
		n.PushUnreadCount(ctx, recipientID)
	}

	return nil
}

// PushUnreadCount recomputes the recipient's unread-notification count with a
// fresh query and pushes it to their personal room if connected. Called after
// authenticate and after every mutation affecting the recipient's
// notifications; the count is never cached.
func (n *Notifier) PushUnreadCount(ctx context.Context, userID string) {
	count, err := n.notifications.CountUnread(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to count unread notifications",
			zap.String("user", userID),
			zap.Error(err))
		return
	}

	if n.presence.IsOnline(userID) {
		n.hub.EmitToRoom(PersonalRoom(userID), NewEvent(EventUnreadCount, UnreadCountPayload{Count: count}))
	}
}

// ProfileSummary resolves a user's profile summary, via the cache when present.
func (n *Notifier) ProfileSummary(ctx context.Context, userID string) (models.ProfileSummary, error) {
	if summary, ok := n.profiles.Get(ctx, userID); ok {
		return summary, nil
	}

	user, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return models.ProfileSummary{}, apperr.NotFound("user")
	}

	summary := user.Summary()
	n.profiles.Set(ctx, summary)
	return summary, nil
}

// MessagePreview builds the notification content for a new message: the
// sender's username plus the first 50 characters of the text.
func MessagePreview(senderUsername, text string) string {
	preview := text
	if runes := []rune(text); len(runes) > previewLimit {
		preview = string(runes[:previewLimit]) + "..."
	}
	return fmt.Sprintf("%s sent you a message: %s", senderUsername, preview)
}

// contentFor derives the user-facing content string for a notification type.
// These strings are part of the client contract and must not drift.
func contentFor(notifType models.NotificationType, senderUsername string) string {
	switch notifType {
	case models.NotificationFollow:
		return fmt.Sprintf("%s started following you", senderUsername)
	case models.NotificationFollowRequest:
		return fmt.Sprintf("%s requested to follow you", senderUsername)
	case models.NotificationFollowRequestAccepted:
		return fmt.Sprintf("%s accepted your follow request", senderUsername)
	case models.NotificationLike:
		return fmt.Sprintf("%s liked your post", senderUsername)
	case models.NotificationComment:
		return fmt.Sprintf("%s commented on your post", senderUsername)
	case models.NotificationMention:
		return fmt.Sprintf("%s mentioned you", senderUsername)
	default:
		return fmt.Sprintf("%s sent you a notification", senderUsername)
	}
}
