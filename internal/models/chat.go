package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chat is a conversation between participants. The two flags form the
// moderation gate, see package moderation.
type Chat struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AdminApproved bool      `gorm:"not null;default:false" json:"adminApproved"`
	IsBlocked     bool      `gorm:"not null;default:false" json:"isBlocked"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Participants []ChatParticipant `gorm:"foreignKey:ChatID" json:"participants,omitempty"`
	Messages     []Message         `gorm:"foreignKey:ChatID" json:"messages,omitempty"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ChatParticipant joins a user to a chat. One row per (chat, user).
type ChatParticipant struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_chat_participant" json:"chatId"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_chat_participant;index" json:"userId"`
	UnreadCount int        `gorm:"not null;default:0" json:"unreadCount"`
	LastReadAt  *time.Time `json:"lastReadAt"`
	JoinedAt    time.Time  `gorm:"autoCreateTime" json:"joinedAt"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}

func (p *ChatParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
