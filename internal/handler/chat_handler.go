package handler

import (
	"net/http"

	"github.com/Baaaki/scooter-fleet/internal/metrics"
	"github.com/Baaaki/scooter-fleet/internal/service"
	"github.com/gin-gonic/gin"
)

// ChatHandler is the REST counterpart of the realtime gateway for clients
// without a live connection.
type ChatHandler struct {
	chats *service.ChatService
}

func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListChats returns the caller's chats
// GET /api/chats
func (h *ChatHandler) ListChats(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	chats, err := h.chats.ListUserChats(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateChat starts a chat, or returns the existing two-party chat
// POST /api/chats
func (h *ChatHandler) CreateChat(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req service.CreateChatInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "bad_request"})
		return
	}

	chat, created, err := h.chats.CreateChat(c.Request.Context(), a, req)
	if req.Message != "" {
		metrics.MessagesTotal.WithLabelValues(service.SendOutcome(err), "rest").Inc()
	}
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"chat": chat, "created": created})
}

// GetChat returns one chat with its history and marks it read
// GET /api/chats/:id
func (h *ChatHandler) GetChat(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	chat, err := h.chats.GetChat(c.Request.Context(), a, chatID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// SendMessage posts a message through the same path as the realtime event
// POST /api/chats/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "bad_request"})
		return
	}

	msg, err := h.chats.SendMessage(c.Request.Context(), a, chatID, req.Content)
	metrics.MessagesTotal.WithLabelValues(service.SendOutcome(err), "rest").Inc()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkRead resets the caller's unread counter
// POST /api/chats/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	if err := h.chats.MarkRead(c.Request.Context(), a, chatID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "unreadCount": 0})
}

// ListAdmins returns admins with any chat already shared with the caller
// GET /api/admins
func (h *ChatHandler) ListAdmins(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	admins, err := h.chats.ListAdmins(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

// RateLimit reports the caller's message budget
// GET /api/rate-limit
func (h *ChatHandler) RateLimit(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	usage, err := h.chats.RateLimitStatus(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}
