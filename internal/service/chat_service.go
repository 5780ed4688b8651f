package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Baaaki/scooter-fleet/internal/metrics"
	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/internal/moderation"
	"github.com/Baaaki/scooter-fleet/internal/ratelimit"
	"github.com/Baaaki/scooter-fleet/internal/realtime"
	"github.com/Baaaki/scooter-fleet/internal/repository"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const MaxContentLength = 4000

type CreateChatInput struct {
	ParticipantIDs []uuid.UUID `json:"participantIds"`
	Message        string      `json:"message"`
}

type ChatService struct {
	chats    *repository.ChatRepository
	messages *repository.MessageRepository
	users    *repository.UserRepository
	limiter  *ratelimit.Limiter
	notifier Notifier
	now      func() time.Time
}

func NewChatService(
	chats *repository.ChatRepository,
	messages *repository.MessageRepository,
	users *repository.UserRepository,
	limiter *ratelimit.Limiter,
	notifier Notifier,
) *ChatService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ChatService{
		chats:    chats,
		messages: messages,
		users:    users,
		limiter:  limiter,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Tests only.
func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

// SendMessage is the single send path for both transports: participant
// check, moderation gate, rate limit, persist, counters, broadcast.
func (s *ChatService) SendMessage(ctx context.Context, actor Actor, chatID uuid.UUID, content string) (*MessageView, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !hasParticipant(chat, actor.ID) {
		logger.Log.Warn("Send rejected: not a participant",
			zap.String("chat_id", chatID.String()),
			zap.String("user_id", actor.ID.String()),
		)
		return nil, ErrNotParticipant
	}

	existing, err := s.messages.CountByChat(ctx, chatID)
	if err != nil {
		return nil, persistence("count messages", err)
	}

	gate := moderation.NewGate(chat.AdminApproved, chat.IsBlocked)
	if err := gate.CheckSend(actor.IsAdmin(), existing); err != nil {
		logger.Log.Warn("Send rejected by moderation gate",
			zap.String("chat_id", chatID.String()),
			zap.String("user_id", actor.ID.String()),
			zap.String("status", gate.Status().String()),
		)
		return nil, err
	}

	if err := s.limiter.Check(ctx, actor.ID, actor.IsAdmin(), ratelimit.Target{ChatID: chatID}); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatID:    chatID,
		SenderID:  actor.ID,
		Content:   content,
		IsRead:    true,
		CreatedAt: s.now(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		logger.Log.Error("Failed to save message",
			zap.String("chat_id", chatID.String()),
			zap.String("user_id", actor.ID.String()),
			zap.Error(err),
		)
		return nil, persistence("save message", err)
	}

	// The message is stored; counter and activity failures only leave badges behind.
	if err := s.chats.IncrementUnread(ctx, chatID, actor.ID); err != nil {
		logger.Log.Error("Failed to increment unread counts",
			zap.String("chat_id", chatID.String()),
			zap.String("message_id", msg.ID.String()),
			zap.Error(err),
		)
	}
	if err := s.chats.Touch(ctx, chatID, msg.CreatedAt); err != nil {
		logger.Log.Warn("Failed to bump chat activity",
			zap.String("chat_id", chatID.String()),
			zap.Error(err),
		)
	}

	view := newMessageView(msg, actor.Name)
	s.notifier.ToChat(ctx, chatID, realtime.EventNewMessage, view)
	for _, p := range chat.Participants {
		if p.UserID == actor.ID {
			continue
		}
		s.notifier.ToUser(ctx, p.UserID, realtime.EventUnreadUpdate, realtime.UnreadUpdate{
			ChatID:    chatID,
			MessageID: msg.ID,
		})
	}

	logger.Log.Debug("Message sent",
		zap.String("chat_id", chatID.String()),
		zap.String("message_id", msg.ID.String()),
		zap.String("user_id", actor.ID.String()),
	)
	return &view, nil
}

// MarkRead zeroes the caller's unread counter for the chat.
func (s *ChatService) MarkRead(ctx context.Context, actor Actor, chatID uuid.UUID) error {
	ok, err := s.chats.IsParticipant(ctx, chatID, actor.ID)
	if err != nil {
		return persistence("load participant", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	if err := s.chats.MarkRead(ctx, chatID, actor.ID, s.now()); err != nil {
		return persistence("mark read", err)
	}
	return nil
}

// GetChat returns the chat with its full history. Participants have their
// unread messages marked read; admins may view chats they are not in.
func (s *ChatService) GetChat(ctx context.Context, actor Actor, chatID uuid.UUID) (*ChatView, error) {
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	member := hasParticipant(chat, actor.ID)
	if !member && !actor.IsAdmin() {
		return nil, ErrNotParticipant
	}

	if member {
		now := s.now()
		if err := s.chats.MarkRead(ctx, chatID, actor.ID, now); err != nil {
			return nil, persistence("mark read", err)
		}
		for i := range chat.Participants {
			if chat.Participants[i].UserID == actor.ID {
				chat.Participants[i].UnreadCount = 0
				chat.Participants[i].LastReadAt = &now
			}
		}
	}

	history, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, persistence("load messages", err)
	}

	view := newChatView(chat, actor.ID)
	view.Messages = make([]MessageView, 0, len(history))
	for i := range history {
		view.Messages = append(view.Messages, newMessageView(&history[i], history[i].Sender.Name))
	}
	if n := len(view.Messages); n > 0 {
		last := view.Messages[n-1]
		view.LastMessage = &last
	}
	return &view, nil
}

// ListUserChats returns the caller's chats, most recently active first.
func (s *ChatService) ListUserChats(ctx context.Context, actor Actor) ([]ChatView, error) {
	chats, err := s.chats.ListChatsForUser(ctx, actor.ID)
	if err != nil {
		return nil, persistence("list chats", err)
	}
	return s.summaries(ctx, chats, actor.ID)
}

// ListAllChats returns every chat. Admins only.
func (s *ChatService) ListAllChats(ctx context.Context, actor Actor) ([]ChatView, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	chats, err := s.chats.ListAllChats(ctx)
	if err != nil {
		return nil, persistence("list chats", err)
	}
	return s.summaries(ctx, chats, actor.ID)
}

func (s *ChatService) summaries(ctx context.Context, chats []models.Chat, viewer uuid.UUID) ([]ChatView, error) {
	out := make([]ChatView, 0, len(chats))
	for i := range chats {
		view := newChatView(&chats[i], viewer)
		last, err := s.messages.LatestByChat(ctx, chats[i].ID)
		if err != nil {
			return nil, persistence("load last message", err)
		}
		if last != nil {
			lv := newMessageView(last, last.Sender.Name)
			view.LastMessage = &lv
		}
		out = append(out, view)
	}
	return out, nil
}

// CreateChat creates a chat between the caller and the given users and, when
// input.Message is set, posts it as the first message. A two-party chat that
// already exists is returned instead of a duplicate; created reports which.
func (s *ChatService) CreateChat(ctx context.Context, actor Actor, input CreateChatInput) (view *ChatView, created bool, err error) {
	others := dedupeOthers(input.ParticipantIDs, actor.ID)
	if len(others) == 0 {
		return nil, false, invalid("at least one other participant is required")
	}
	if input.Message != "" {
		if err := validateContent(input.Message); err != nil {
			return nil, false, err
		}
	}

	users, err := s.users.GetUsersByIDs(ctx, others)
	if err != nil {
		return nil, false, persistence("load users", err)
	}
	if len(users) != len(others) {
		return nil, false, ErrUserNotFound
	}

	chatID, err := s.existingDirectChat(ctx, actor.ID, others)
	if err != nil {
		return nil, false, err
	}

	if chatID == uuid.Nil {
		all := append([]uuid.UUID{actor.ID}, others...)
		if input.Message != "" {
			target := ratelimit.Target{ParticipantIDs: all}
			if err := s.limiter.Check(ctx, actor.ID, actor.IsAdmin(), target); err != nil {
				return nil, false, err
			}
		}

		chat := &models.Chat{AdminApproved: actor.IsAdmin()}
		if err := s.chats.CreateChat(ctx, chat, all); err != nil {
			logger.Log.Error("Failed to create chat",
				zap.String("user_id", actor.ID.String()),
				zap.Error(err),
			)
			return nil, false, persistence("create chat", err)
		}
		chatID = chat.ID
		created = true

		s.notifier.JoinChat(ctx, chatID, all...)
		logger.Log.Info("Chat created",
			zap.String("chat_id", chatID.String()),
			zap.String("user_id", actor.ID.String()),
			zap.Int("participants", len(all)),
		)
	}

	if input.Message != "" {
		if _, err := s.SendMessage(ctx, actor, chatID, input.Message); err != nil {
			return nil, created, err
		}
	}

	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, created, err
	}
	v := newChatView(chat, actor.ID)
	if last, err := s.messages.LatestByChat(ctx, chatID); err == nil && last != nil {
		lv := newMessageView(last, last.Sender.Name)
		v.LastMessage = &lv
	}
	return &v, created, nil
}

func (s *ChatService) existingDirectChat(ctx context.Context, actorID uuid.UUID, others []uuid.UUID) (uuid.UUID, error) {
	if len(others) != 1 {
		return uuid.Nil, nil
	}
	chat, err := s.chats.FindDirectChat(ctx, actorID, others[0])
	if err != nil {
		return uuid.Nil, persistence("find chat", err)
	}
	if chat == nil {
		return uuid.Nil, nil
	}
	return chat.ID, nil
}

// ApproveChat lets non-admin participants send freely until the chat is blocked.
func (s *ChatService) ApproveChat(ctx context.Context, actor Actor, chatID uuid.UUID) (*realtime.ChatStatus, error) {
	return s.moderate(ctx, actor, chatID, "approve", moderation.Gate.Approve)
}

// BlockChat stops non-admin sends. Admins can still write.
func (s *ChatService) BlockChat(ctx context.Context, actor Actor, chatID uuid.UUID) (*realtime.ChatStatus, error) {
	return s.moderate(ctx, actor, chatID, "block", moderation.Gate.Block)
}

// UnblockChat restores the state the chat had before it was blocked.
func (s *ChatService) UnblockChat(ctx context.Context, actor Actor, chatID uuid.UUID) (*realtime.ChatStatus, error) {
	return s.moderate(ctx, actor, chatID, "unblock", moderation.Gate.Unblock)
}

func (s *ChatService) moderate(ctx context.Context, actor Actor, chatID uuid.UUID, action string, transition func(moderation.Gate) moderation.Gate) (*realtime.ChatStatus, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminRequired
	}
	chat, err := s.loadChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	next := transition(moderation.NewGate(chat.AdminApproved, chat.IsBlocked))
	if err := s.chats.UpdateFlags(ctx, chatID, next.AdminApproved(), next.IsBlocked()); err != nil {
		logger.Log.Error("Failed to update chat moderation flags",
			zap.String("chat_id", chatID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
		return nil, persistence(action+" chat", err)
	}

	status := &realtime.ChatStatus{
		ChatID:        chatID,
		AdminApproved: next.AdminApproved(),
		IsBlocked:     next.IsBlocked(),
	}
	s.notifier.ToChat(ctx, chatID, realtime.EventChatStatusChanged, status)
	metrics.ModerationActions.WithLabelValues(action).Inc()

	logger.Log.Info("Chat moderated",
		zap.String("chat_id", chatID.String()),
		zap.String("admin_id", actor.ID.String()),
		zap.String("action", action),
		zap.String("status", next.Status().String()),
	)
	return status, nil
}

// DeleteChat removes the chat with its messages and participants and tells
// connected members before their room is dropped.
func (s *ChatService) DeleteChat(ctx context.Context, actor Actor, chatID uuid.UUID) error {
	if !actor.IsAdmin() {
		return ErrAdminRequired
	}
	if _, err := s.loadChat(ctx, chatID); err != nil {
		return err
	}

	if err := s.chats.DeleteChat(ctx, chatID); err != nil {
		logger.Log.Error("Failed to delete chat",
			zap.String("chat_id", chatID.String()),
			zap.Error(err),
		)
		return persistence("delete chat", err)
	}

	s.notifier.ToChat(ctx, chatID, realtime.EventChatDeleted, realtime.ChatDeleted{ChatID: chatID})
	s.notifier.DropChat(ctx, chatID)
	metrics.ModerationActions.WithLabelValues("delete").Inc()

	logger.Log.Info("Chat deleted",
		zap.String("chat_id", chatID.String()),
		zap.String("admin_id", actor.ID.String()),
	)
	return nil
}

// ListAdmins lists the admins the caller can start a chat with.
func (s *ChatService) ListAdmins(ctx context.Context, actor Actor) ([]AdminView, error) {
	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		return nil, persistence("list admins", err)
	}

	ids := make([]uuid.UUID, 0, len(admins))
	for _, a := range admins {
		if a.ID != actor.ID {
			ids = append(ids, a.ID)
		}
	}
	existing, err := s.chats.ExistingChatsWith(ctx, actor.ID, ids)
	if err != nil {
		return nil, persistence("find chats", err)
	}

	out := make([]AdminView, 0, len(ids))
	for _, a := range admins {
		if a.ID == actor.ID {
			continue
		}
		view := AdminView{ID: a.ID, Name: a.Name, Email: a.Email}
		if chatID, ok := existing[a.ID]; ok {
			id := chatID
			view.ChatID = &id
		}
		out = append(out, view)
	}
	return out, nil
}

// RateLimitStatus reports the caller's usage without counting a send.
func (s *ChatService) RateLimitStatus(ctx context.Context, actor Actor) (ratelimit.Usage, error) {
	usage, err := s.limiter.Status(ctx, actor.ID, actor.IsAdmin())
	if err != nil {
		return ratelimit.Usage{}, persistence("rate limit status", err)
	}
	return usage, nil
}

// ChatIDsForUser lists the chat rooms a new connection subscribes to.
func (s *ChatService) ChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.chats.ChatIDsForUser(ctx, userID)
	if err != nil {
		return nil, persistence("list chat ids", err)
	}
	return ids, nil
}

// CoParticipants lists the users who receive userID's presence changes.
func (s *ChatService) CoParticipants(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.chats.CoParticipantIDs(ctx, userID)
	if err != nil {
		return nil, persistence("list co-participants", err)
	}
	return ids, nil
}

func (s *ChatService) loadChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chats.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, persistence("load chat", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return invalid("message content exceeds %d characters", MaxContentLength)
	}
	return nil
}

func dedupeOthers(ids []uuid.UUID, self uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == self || id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
