package service

import (
	"time"

	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/internal/moderation"
	"github.com/google/uuid"
)

// Actor is the authenticated caller of a chat operation.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

type SenderView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// MessageView is the message record sent to clients, sender included.
type MessageView struct {
	ID        uuid.UUID  `json:"id"`
	ChatID    uuid.UUID  `json:"chatId"`
	SenderID  uuid.UUID  `json:"senderId"`
	Content   string     `json:"content"`
	IsRead    bool       `json:"isRead"`
	CreatedAt time.Time  `json:"createdAt"`
	Sender    SenderView `json:"sender"`
}

type ParticipantView struct {
	UserID      uuid.UUID   `json:"userId"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
	UnreadCount int         `json:"unreadCount"`
	LastReadAt  *time.Time  `json:"lastReadAt"`
}

type ChatView struct {
	ID            uuid.UUID         `json:"id"`
	AdminApproved bool              `json:"adminApproved"`
	IsBlocked     bool              `json:"isBlocked"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Participants  []ParticipantView `json:"participants"`
	UnreadCount   int               `json:"unreadCount"`
	LastMessage   *MessageView      `json:"lastMessage,omitempty"`
	Messages      []MessageView     `json:"messages,omitempty"`
}

// AdminView is an admin the caller can contact. ChatID is set when they
// already share a chat.
type AdminView struct {
	ID     uuid.UUID  `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	ChatID *uuid.UUID `json:"chatId"`
}

func newMessageView(m *models.Message, senderName string) MessageView {
	return MessageView{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
		Sender:    SenderView{ID: m.SenderID, Name: senderName},
	}
}

// newChatView summarizes chat from viewer's side. UnreadCount is the
// viewer's own counter, zero when the viewer is not a participant.
func newChatView(chat *models.Chat, viewer uuid.UUID) ChatView {
	gate := moderation.NewGate(chat.AdminApproved, chat.IsBlocked)
	view := ChatView{
		ID:            chat.ID,
		AdminApproved: chat.AdminApproved,
		IsBlocked:     chat.IsBlocked,
		Status:        gate.Status().String(),
		CreatedAt:     chat.CreatedAt,
		UpdatedAt:     chat.UpdatedAt,
		Participants:  make([]ParticipantView, 0, len(chat.Participants)),
	}
	for _, p := range chat.Participants {
		view.Participants = append(view.Participants, ParticipantView{
			UserID:      p.UserID,
			Name:        p.User.Name,
			Email:       p.User.Email,
			Role:        p.User.Role,
			UnreadCount: p.UnreadCount,
			LastReadAt:  p.LastReadAt,
		})
		if p.UserID == viewer {
			view.UnreadCount = p.UnreadCount
		}
	}
	return view
}

func hasParticipant(chat *models.Chat, userID uuid.UUID) bool {
	for _, p := range chat.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
