// Package handlers contains the REST endpoints that collaborate with the
// realtime gateway: notification CRUD, conversation/message flows and the
// social-graph operations that trigger notification fan-out.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lumenfeed/backend/internal/apperr"
	"github.com/lumenfeed/backend/internal/auth"
	"github.com/lumenfeed/backend/internal/gateway"
	"github.com/lumenfeed/backend/internal/models"
	"github.com/lumenfeed/backend/internal/repository"
)

// Handlers holds the dependencies for all REST endpoints.
type Handlers struct {
	auth    *auth.Service
	gateway *gateway.Service

	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
}

// New creates the REST handler set.
func New(
	authService *auth.Service,
	gatewayService *gateway.Service,
	users repository.UserRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	notifications repository.NotificationRepository,
) *Handlers {
	return &Handlers{
		auth:          authService,
		gateway:       gatewayService,
		users:         users,
		conversations: conversations,
		messages:      messages,
		notifications: notifications,
	}
}

// AuthMiddleware validates the bearer token and loads the user into the
// request context.
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if header := c.GetHeader("Authorization"); header != "" {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
			return
		}

		userID, err := h.auth.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		user, err := h.users.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_not_found"})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

// currentUser returns the authenticated user placed in context by
// AuthMiddleware.
func currentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

// respondError writes a classified error as a JSON envelope.
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.Status(), gin.H{"error": appErr.Code, "message": appErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
