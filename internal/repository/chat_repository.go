package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateChat inserts the chat and one participant row per user
func (r *ChatRepository) CreateChat(ctx context.Context, chat *models.Chat, userIDs []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(chat).Error; err != nil {
			return err
		}

		participants := make([]models.ChatParticipant, 0, len(userIDs))
		for _, id := range userIDs {
			participants = append(participants, models.ChatParticipant{ChatID: chat.ID, UserID: id})
		}
		return tx.Omit(clause.Associations).Create(&participants).Error
	})
}

// GetChatByID returns nil, nil when the chat does not exist
func (r *ChatRepository) GetChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Where("id = ?", id).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chat, nil
}

// ListChatsForUser returns the user's chats, most recently active first
func (r *ChatRepository) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Where("id IN (?)", r.db.Model(&models.ChatParticipant{}).Select("chat_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").
		Find(&chats).Error
	return chats, err
}

// ListAllChats returns every chat for the admin view, most recently active first
func (r *ChatRepository) ListAllChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Order("updated_at DESC").
		Find(&chats).Error
	return chats, err
}

// ChatIDsForUser lists the chats the user participates in
func (r *ChatRepository) ChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &ids).Error
	return ids, err
}

// CoParticipantIDs lists every other user sharing at least one chat with userID
func (r *ChatRepository) CoParticipantIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Distinct("user_id").
		Where("chat_id IN (?)", r.db.Model(&models.ChatParticipant{}).Select("chat_id").Where("user_id = ?", userID)).
		Where("user_id <> ?", userID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// IsParticipant reports whether the user has a participant row in the chat
func (r *ChatRepository) IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

// FindDirectChat returns the chat whose participants are exactly a and b
func (r *ChatRepository) FindDirectChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Group("chat_id").
		Having("COUNT(*) = 2 AND SUM(CASE WHEN user_id IN (?, ?) THEN 1 ELSE 0 END) = 2", a, b).
		Limit(1).
		Pluck("chat_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return r.GetChatByID(ctx, ids[0])
}

// ExistingChatsWith maps each of others to a chat it already shares with userID
func (r *ChatRepository) ExistingChatsWith(ctx context.Context, userID uuid.UUID, others []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID, len(others))
	if len(others) == 0 {
		return out, nil
	}

	var rows []struct {
		ChatID uuid.UUID
		UserID uuid.UUID
	}
	err := r.db.WithContext(ctx).
		Table("chat_participants AS other").
		Select("other.chat_id AS chat_id, other.user_id AS user_id").
		Joins("JOIN chat_participants AS me ON me.chat_id = other.chat_id AND me.user_id = ?", userID).
		Where("other.user_id IN ?", others).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if _, seen := out[row.UserID]; !seen {
			out[row.UserID] = row.ChatID
		}
	}
	return out, nil
}

// UpdateFlags persists the moderation gate
func (r *ChatRepository) UpdateFlags(ctx context.Context, chatID uuid.UUID, adminApproved, isBlocked bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"admin_approved": adminApproved,
			"is_blocked":     isBlocked,
		}).Error
}

// Touch bumps updated_at so chat lists sort by last activity
func (r *ChatRepository) Touch(ctx context.Context, chatID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ?", chatID).
		UpdateColumn("updated_at", at).Error
}

// IncrementUnread adds one unread message for every participant except the sender.
// A single UPDATE, so concurrent senders never lose increments.
func (r *ChatRepository) IncrementUnread(ctx context.Context, chatID, senderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id <> ?", chatID, senderID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
}

// MarkRead zeroes the reader's counter and flags messages from others as read
func (r *ChatRepository) MarkRead(ctx context.Context, chatID, userID uuid.UUID, at time.Time) error {
	db := r.db.WithContext(ctx)

	err := db.Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		UpdateColumns(map[string]interface{}{
			"unread_count": 0,
			"last_read_at": at,
		}).Error
	if err != nil {
		return err
	}

	return db.Model(&models.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, userID, false).
		UpdateColumn("is_read", true).Error
}

// DeleteChat removes messages, then participants, then the chat
func (r *ChatRepository) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&models.ChatParticipant{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&models.Chat{}).Error
	})
}

// ChatHasAdmin reports whether any participant of the chat is an admin
func (r *ChatRepository) ChatHasAdmin(ctx context.Context, chatID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Joins("JOIN users ON users.id = chat_participants.user_id").
		Where("chat_participants.chat_id = ? AND users.role = ?", chatID, models.RoleAdmin).
		Count(&count).Error
	return count > 0, err
}

// AnyAdmin reports whether any of the given users is an admin
func (r *ChatRepository) AnyAdmin(ctx context.Context, userIDs []uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ? AND role = ?", userIDs, models.RoleAdmin).
		Count(&count).Error
	return count > 0, err
}

// CountSentToAdminChats counts the sender's messages since the given time in
// chats that include an admin participant
func (r *ChatRepository) CountSentToAdminChats(ctx context.Context, senderID uuid.UUID, since time.Time) (int64, error) {
	adminChats := r.db.
		Model(&models.ChatParticipant{}).
		Select("chat_participants.chat_id").
		Joins("JOIN users ON users.id = chat_participants.user_id").
		Where("users.role = ?", models.RoleAdmin)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND created_at >= ? AND chat_id IN (?)", senderID, since, adminChats).
		Count(&count).Error
	return count, err
}
