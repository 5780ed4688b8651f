package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound events
const (
	EventSendMessage     = "send-message"
	EventMarkRead        = "mark-read"
	EventTyping          = "typing"
	EventStopTyping      = "stop-typing"
	EventGetOnlineStatus = "get-online-status"
)

// Outbound events
const (
	EventNewMessage        = "new-message"
	EventUnreadUpdate      = "unread-update"
	EventUserTyping        = "user-typing"
	EventUserStopTyping    = "user-stop-typing"
	EventOnlineStatus      = "online-status"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventChatStatusChanged = "chat-status-changed"
	EventChatDeleted       = "chat-deleted"
	EventMessagesRead      = "messages-read"
	EventError             = "error"
)

// Frame is the wire format in both directions: {"event": "...", "data": {...}}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ChatRoom(chatID uuid.UUID) string { return "chat:" + chatID.String() }
func UserRoom(userID uuid.UUID) string { return "user:" + userID.String() }

type SendMessageRequest struct {
	ChatID  uuid.UUID `json:"chatId"`
	Content string    `json:"content"`
}

type ChatRef struct {
	ChatID uuid.UUID `json:"chatId"`
}

type OnlineStatusRequest struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

type UnreadUpdate struct {
	ChatID    uuid.UUID `json:"chatId"`
	MessageID uuid.UUID `json:"messageId"`
}

type TypingNotice struct {
	ChatID   uuid.UUID `json:"chatId"`
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName,omitempty"`
}

type PresenceNotice struct {
	UserID uuid.UUID `json:"userId"`
}

type ChatStatus struct {
	ChatID        uuid.UUID `json:"chatId"`
	AdminApproved bool      `json:"adminApproved"`
	IsBlocked     bool      `json:"isBlocked"`
}

type ChatDeleted struct {
	ChatID uuid.UUID `json:"chatId"`
}

type MessagesRead struct {
	ChatID uuid.UUID `json:"chatId"`
}

type ErrorNotice struct {
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}
