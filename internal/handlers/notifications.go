package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lumenfeed/backend/internal/logger"
	"go.uber.org/zap"
)

// GetNotifications lists the user's notifications with the unread count.
// GET /api/v1/notifications
func (h *Handlers) GetNotifications(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifications, err := h.notifications.ListForRecipient(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.notifications.CountUnread(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"unread_count":  unread,
		"has_more":      len(notifications) == limit,
	})
}

// MarkNotificationRead marks a single notification as read and pushes the
// refreshed unread count to the user's live connections.
// PUT /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification_not_found"})
		return
	}

	h.gateway.Notifier().PushUnreadCount(c.Request.Context(), user.ID)

	unread, _ := h.notifications.CountUnread(c.Request.Context(), user.ID)
	c.JSON(http.StatusOK, gin.H{
		"message":      "notification marked as read",
		"unread_count": unread,
	})
}

// MarkAllNotificationsRead marks every unread notification as read.
// PUT /api/v1/notifications/read-all
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	if err := h.notifications.MarkAllRead(c.Request.Context(), user.ID); err != nil {
		respondError(c, err)
		return
	}

	h.gateway.Notifier().PushUnreadCount(c.Request.Context(), user.ID)

	c.JSON(http.StatusOK, gin.H{
		"message":      "all notifications marked as read",
		"unread_count": 0,
	})
}

// DeleteNotification removes one notification.
// DELETE /api/v1/notifications/:id
func (h *Handlers) DeleteNotification(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	if err := h.notifications.Delete(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification_not_found"})
		return
	}

	h.gateway.Notifier().PushUnreadCount(c.Request.Context(), user.ID)

	unread, _ := h.notifications.CountUnread(c.Request.Context(), user.ID)
	logger.Log.Debug("Notification deleted",
		zap.String("user", user.ID),
		zap.Int64("unread", unread))

	c.JSON(http.StatusOK, gin.H{
		"message":      "notification deleted",
		"unread_count": unread,
	})
}

// DeleteAllNotifications removes every notification for the user.
// DELETE /api/v1/notifications
func (h *Handlers) DeleteAllNotifications(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	if err := h.notifications.DeleteAllForRecipient(c.Request.Context(), user.ID); err != nil {
		respondError(c, err)
		return
	}

	h.gateway.Notifier().PushUnreadCount(c.Request.Context(), user.ID)

	c.JSON(http.StatusOK, gin.H{
		"message":      "all notifications deleted",
		"unread_count": 0,
	})
}
