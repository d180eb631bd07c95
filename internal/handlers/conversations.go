package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lumenfeed/backend/internal/models"
	"github.com/samber/lo"
)

// CreateConversationRequest starts a direct or group conversation.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
	IsGroup        bool     `json:"is_group"`
	GroupName      string   `json:"group_name"`
}

// CreateConversation creates a conversation and subscribes every online
// participant's connections to its room, so users added mid-session receive
// realtime messages without reconnecting.
// POST /api/v1/conversations
func (h *Handlers) CreateConversation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Creator is always a participant.
	participantIDs := lo.Uniq(append(req.ParticipantIDs, user.ID))
	for _, participantID := range participantIDs {
		if _, err := h.users.GetUser(c.Request.Context(), participantID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found", "user_id": participantID})
			return
		}
	}

	conversation := &models.Conversation{
		IsGroup:   req.IsGroup,
		GroupName: req.GroupName,
	}
	if err := h.conversations.Create(c.Request.Context(), conversation, participantIDs); err != nil {
		respondError(c, err)
		return
	}

	h.gateway.JoinConversation(conversation.ID, participantIDs...)

	created, err := h.conversations.Get(c.Request.Context(), conversation.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": created})
}

// GetConversations lists the user's conversations, most recent first.
// GET /api/v1/conversations
func (h *Handlers) GetConversations(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	conversations, err := h.conversations.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetConversationMessages pages through a conversation's messages. This is
// the catch-up path after reconnect; the gateway only pushes deltas.
// GET /api/v1/conversations/:id/messages
func (h *Handlers) GetConversationMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	conversationID := c.Param("id")
	isParticipant, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !isParticipant {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation_not_found"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.messages.ListForConversation(c.Request.Context(), conversationID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"has_more": len(messages) == limit,
	})
}

// SendMessageRequest is the REST body for sending a message.
type SendMessageRequest struct {
	Text  string `json:"text"`
	Media string `json:"media"`
}

// SendMessage persists and broadcasts a message through the same ingest path
// as the socket event.
// POST /api/v1/conversations/:id/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.gateway.SendMessage(c.Request.Context(), user.ID, c.Param("id"), req.Text, req.Media)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}

// MarkConversationRead marks every message in the conversation as read by
// the caller in one shot.
// POST /api/v1/conversations/:id/read
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated"})
		return
	}

	conversationID := c.Param("id")
	isParticipant, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !isParticipant {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation_not_found"})
		return
	}

	marked, err := h.conversations.MarkConversationRead(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": marked})
}
