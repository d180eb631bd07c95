package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumenfeed/backend/internal/gateway"
	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/models"
	"go.uber.org/zap"
)

// FollowUser follows a public account, or files a follow request for a
// private one. Either path fans out exactly one notification through the
// gateway's Notifier, which owns self-notify suppression and the unread
// refresh.
// POST /api/v1/users/:id/follow
func (h *Handlers) FollowUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	targetID := c.Param("id")
	if targetID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot_follow_self"})
		return
	}

	ctx := c.Request.Context()
	target, err := h.users.GetUser(ctx, targetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
		return
	}

	following, err := h.users.IsFollowing(ctx, user.ID, target.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if following {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already_following"})
		return
	}

	if target.IsPrivate {
		requested, err := h.users.HasFollowRequest(ctx, user.ID, target.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		if requested {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request_already_sent"})
			return
		}

		if err := h.users.CreateFollowRequest(ctx, user.ID, target.ID); err != nil {
			respondError(c, err)
			return
		}
		h.notify(c, target.ID, user.ID, models.NotificationFollowRequest)

		c.JSON(http.StatusOK, gin.H{"message": "follow request sent", "status": "requested"})
		return
	}

	if err := h.users.CreateFollow(ctx, user.ID, target.ID); err != nil {
		respondError(c, err)
		return
	}
	h.notify(c, target.ID, user.ID, models.NotificationFollow)

	c.JSON(http.StatusOK, gin.H{"message": "user followed successfully", "status": "following"})
}

// UnfollowUser removes an established follow. No notification is produced.
// POST /api/v1/users/:id/unfollow
func (h *Handlers) UnfollowUser(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	targetID := c.Param("id")
	ctx := c.Request.Context()

	following, err := h.users.IsFollowing(ctx, user.ID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !following {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not_following"})
		return
	}

	if err := h.users.DeleteFollow(ctx, user.ID, targetID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user unfollowed successfully", "status": "not_following"})
}

// CancelFollowRequest withdraws a pending request and deletes the
// follow_request notification it created.
// POST /api/v1/users/:id/cancel-request
func (h *Handlers) CancelFollowRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	targetID := c.Param("id")
	ctx := c.Request.Context()

	requested, err := h.users.HasFollowRequest(ctx, user.ID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !requested {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_follow_request"})
		return
	}

	if err := h.users.DeleteFollowRequest(ctx, user.ID, targetID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.notifications.DeleteFollowRequestNotification(ctx, user.ID, targetID); err != nil {
		logger.Log.Warn("Failed to delete follow request notification",
			zap.String("requester", user.ID),
			zap.String("target", targetID),
			zap.Error(err))
	}
	h.gateway.Notifier().PushUnreadCount(ctx, targetID)

	c.JSON(http.StatusOK, gin.H{"message": "follow request canceled", "status": "not_following"})
}

// AcceptFollowRequest converts a pending request into an established follow
// and notifies the requester.
// POST /api/v1/users/:id/accept-follow
func (h *Handlers) AcceptFollowRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	requesterID := c.Param("id")
	ctx := c.Request.Context()

	requested, err := h.users.HasFollowRequest(ctx, requesterID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !requested {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_follow_request"})
		return
	}

	if err := h.users.DeleteFollowRequest(ctx, requesterID, user.ID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.users.CreateFollow(ctx, requesterID, user.ID); err != nil {
		respondError(c, err)
		return
	}
	h.notify(c, requesterID, user.ID, models.NotificationFollowRequestAccepted)

	c.JSON(http.StatusOK, gin.H{"message": "follow request accepted", "status": "following"})
}

// notify routes a social event through the fan-out pipeline. Delivery
// failure never fails the triggering request.
func (h *Handlers) notify(c *gin.Context, recipientID, senderID string, notifType models.NotificationType) {
	err := h.gateway.Notifier().Notify(c.Request.Context(), recipientID, senderID, notifType, gateway.Refs{}, "")
	if err != nil {
		logger.Log.Error("Notification fan-out failed",
			zap.String("type", string(notifType)),
			zap.String("recipient", recipientID),
			zap.Error(err))
	}
}
