// Package ratelimit caps how many messages a non-admin user may send into
// chats that include an admin. Usage is counted from stored messages over a
// trailing window, so the limit survives restarts and is shared by every
// instance reading the same database.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Hour
)

// Store answers the lookups the limiter needs. Implemented by the chat
// repository.
type Store interface {
	ChatHasAdmin(ctx context.Context, chatID uuid.UUID) (bool, error)
	AnyAdmin(ctx context.Context, userIDs []uuid.UUID) (bool, error)
	CountSentToAdminChats(ctx context.Context, senderID uuid.UUID, since time.Time) (int64, error)
}

// Target is the chat a message is headed for: an existing chat by id, or the
// participant set of a chat that does not exist yet.
type Target struct {
	ChatID         uuid.UUID
	ParticipantIDs []uuid.UUID
}

// ExceededError is returned when the sender is over budget.
type ExceededError struct {
	Limit        int       `json:"limit"`
	MessagesSent int64     `json:"messagesSent"`
	ResetTime    time.Time `json:"resetTime"`
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d of %d messages sent, resets at %s",
		e.MessagesSent, e.Limit, e.ResetTime.Format(time.RFC3339))
}

// Usage is the read-only view used by clients to disable sending early.
type Usage struct {
	Limit        int       `json:"limit"`
	MessagesSent int64     `json:"messagesSent"`
	Remaining    int64     `json:"remaining"`
	ResetTime    time.Time `json:"resetTime"`
	IsLimited    bool      `json:"isLimited"`
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewLimiter allows limit sends to admin chats per trailing window.
func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check returns *ExceededError when the send must be rejected. Lookup
// failures are logged and the send is allowed.
func (l *Limiter) Check(ctx context.Context, senderID uuid.UUID, senderIsAdmin bool, target Target) error {
	if senderIsAdmin {
		return nil
	}

	applies, err := l.targetsAdmin(ctx, target)
	if err != nil {
		logger.Log.Warn("Rate limit lookup failed, allowing send",
			zap.String("user_id", senderID.String()),
			zap.Error(err),
		)
		return nil
	}
	if !applies {
		return nil
	}

	usage, err := l.usage(ctx, senderID)
	if err != nil {
		logger.Log.Warn("Rate limit count failed, allowing send",
			zap.String("user_id", senderID.String()),
			zap.Error(err),
		)
		return nil
	}

	if usage.IsLimited {
		logger.Log.Warn("Rate limit exceeded",
			zap.String("user_id", senderID.String()),
			zap.Int64("messages_sent", usage.MessagesSent),
			zap.Int("limit", usage.Limit),
		)
		return &ExceededError{
			Limit:        usage.Limit,
			MessagesSent: usage.MessagesSent,
			ResetTime:    usage.ResetTime,
		}
	}
	return nil
}

// Status reports the caller's counters without changing anything. Admins
// are never limited.
func (l *Limiter) Status(ctx context.Context, userID uuid.UUID, isAdmin bool) (Usage, error) {
	if isAdmin {
		windowStart := l.now().Add(-l.window)
		return Usage{
			Limit:     l.limit,
			Remaining: int64(l.limit),
			ResetTime: l.resetTime(windowStart),
		}, nil
	}
	return l.usage(ctx, userID)
}

func (l *Limiter) targetsAdmin(ctx context.Context, target Target) (bool, error) {
	if target.ChatID != uuid.Nil {
		return l.store.ChatHasAdmin(ctx, target.ChatID)
	}
	if len(target.ParticipantIDs) == 0 {
		return false, nil
	}
	return l.store.AnyAdmin(ctx, target.ParticipantIDs)
}

func (l *Limiter) usage(ctx context.Context, userID uuid.UUID) (Usage, error) {
	windowStart := l.now().Add(-l.window)

	sent, err := l.store.CountSentToAdminChats(ctx, userID, windowStart)
	if err != nil {
		return Usage{}, err
	}

	remaining := int64(l.limit) - sent
	if remaining < 0 {
		remaining = 0
	}

	return Usage{
		Limit:        l.limit,
		MessagesSent: sent,
		Remaining:    remaining,
		ResetTime:    l.resetTime(windowStart),
		IsLimited:    sent >= int64(l.limit),
	}, nil
}

// resetTime is windowStart plus two windows, which lands one window after
// now regardless of when the oldest counted message was sent.
func (l *Limiter) resetTime(windowStart time.Time) time.Time {
	return windowStart.Add(2 * l.window)
}
