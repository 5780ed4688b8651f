package handler

import (
	"context"
	"net/http"

	"github.com/Baaaki/scooter-fleet/internal/realtime"
	"github.com/Baaaki/scooter-fleet/internal/service"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminHandler serves the moderation routes. Mounted behind AdminMiddleware;
// the service checks the role again.
type AdminHandler struct {
	chats *service.ChatService
}

func NewAdminHandler(chats *service.ChatService) *AdminHandler {
	return &AdminHandler{chats: chats}
}

// ListChats returns every chat
// GET /api/admin/chats
func (h *AdminHandler) ListChats(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	chats, err := h.chats.ListAllChats(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// POST /api/admin/chats/:id/approve
func (h *AdminHandler) ApproveChat(c *gin.Context) {
	h.moderate(c, "approve", h.chats.ApproveChat)
}

// POST /api/admin/chats/:id/block
func (h *AdminHandler) BlockChat(c *gin.Context) {
	h.moderate(c, "block", h.chats.BlockChat)
}

// POST /api/admin/chats/:id/unblock
func (h *AdminHandler) UnblockChat(c *gin.Context) {
	h.moderate(c, "unblock", h.chats.UnblockChat)
}

type moderationFunc func(ctx context.Context, actor service.Actor, chatID uuid.UUID) (*realtime.ChatStatus, error)

func (h *AdminHandler) moderate(c *gin.Context, action string, fn moderationFunc) {
	a, ok := actor(c)
	if !ok {
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	logger.Log.Info("Admin moderation request",
		zap.String("admin_id", a.ID.String()),
		zap.String("chat_id", chatID.String()),
		zap.String("action", action),
	)

	status, err := fn(c.Request.Context(), a, chatID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": status})
}

// DeleteChat removes a chat with its messages and participants
// DELETE /api/admin/chats/:id
func (h *AdminHandler) DeleteChat(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	chatID, ok := chatIDParam(c)
	if !ok {
		return
	}

	if err := h.chats.DeleteChat(c.Request.Context(), a, chatID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted", "chatId": chatID})
}
