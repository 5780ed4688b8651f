package testutil

import (
	"testing"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/internal/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const TestPassword = "Test123456"

// CreateUser inserts a user with a real argon2id hash of TestPassword
func CreateUser(t *testing.T, db *gorm.DB, name, email string, role models.Role) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}
	return user
}

// DefaultTestUser creates a regular rider account
func DefaultTestUser(t *testing.T, db *gorm.DB) *models.User {
	return CreateUser(t, db, "Test Rider", "rider@example.com", models.RoleUser)
}

// DefaultAdminUser creates a fleet admin account
func DefaultAdminUser(t *testing.T, db *gorm.DB) *models.User {
	return CreateUser(t, db, "Fleet Admin", "admin@example.com", models.RoleAdmin)
}

// CreateChat inserts a chat with the given flags and participants
func CreateChat(t *testing.T, db *gorm.DB, adminApproved, isBlocked bool, users ...*models.User) *models.Chat {
	t.Helper()

	chat := &models.Chat{}
	if err := db.Omit(clause.Associations).Create(chat).Error; err != nil {
		t.Fatalf("Failed to create chat: %v", err)
	}
	// Explicit update, gorm skips false/zero values with a default tag
	if err := db.Model(chat).Updates(map[string]interface{}{
		"admin_approved": adminApproved,
		"is_blocked":     isBlocked,
	}).Error; err != nil {
		t.Fatalf("Failed to set chat flags: %v", err)
	}
	chat.AdminApproved = adminApproved
	chat.IsBlocked = isBlocked

	for _, u := range users {
		p := &models.ChatParticipant{ChatID: chat.ID, UserID: u.ID}
		if err := db.Omit(clause.Associations).Create(p).Error; err != nil {
			t.Fatalf("Failed to add participant: %v", err)
		}
	}
	return chat
}

// CreateMessage stores a message sent at the given time
func CreateMessage(t *testing.T, db *gorm.DB, chatID, senderID uuid.UUID, content string, at time.Time) *models.Message {
	t.Helper()

	msg := &models.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: at.UTC(),
	}
	if err := db.Omit(clause.Associations).Create(msg).Error; err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}
	return msg
}

// Participant reloads the participant row for assertions
func Participant(t *testing.T, db *gorm.DB, chatID, userID uuid.UUID) models.ChatParticipant {
	t.Helper()

	var p models.ChatParticipant
	if err := db.Where("chat_id = ? AND user_id = ?", chatID, userID).First(&p).Error; err != nil {
		t.Fatalf("Failed to load participant: %v", err)
	}
	return p
}

// Token issues a JWT for the user, as the login endpoint would
func Token(t *testing.T, user *models.User, secret string) string {
	t.Helper()

	token, err := utils.GenerateToken(user, secret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}
