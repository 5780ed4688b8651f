package service

import (
	"errors"
	"fmt"

	"github.com/Baaaki/scooter-fleet/internal/metrics"
	"github.com/Baaaki/scooter-fleet/internal/moderation"
	"github.com/Baaaki/scooter-fleet/internal/ratelimit"
)

var (
	ErrNotParticipant = errors.New("you are not a participant of this chat")
	ErrAdminRequired  = errors.New("admin access required")
	ErrChatNotFound   = errors.New("chat not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrPersistence    = errors.New("storage failure")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// SendOutcome classifies a SendMessage result for metrics.
func SendOutcome(err error) string {
	var exceeded *ratelimit.ExceededError
	switch {
	case err == nil:
		return metrics.OutcomeSent
	case errors.Is(err, moderation.ErrPendingApproval):
		return metrics.OutcomePending
	case errors.Is(err, moderation.ErrChatBlocked):
		return metrics.OutcomeBlocked
	case errors.As(err, &exceeded):
		return metrics.OutcomeRateLimited
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrChatNotFound), errors.Is(err, ErrInvalidInput):
		return metrics.OutcomeDenied
	default:
		return metrics.OutcomeFailed
	}
}
