package service

import (
	"context"

	"github.com/google/uuid"
)

// Notifier pushes realtime events to rooms. Delivery is best effort and
// implementations never report failures to the caller.
type Notifier interface {
	ToChat(ctx context.Context, chatID uuid.UUID, event string, payload interface{}, except ...uuid.UUID)
	ToUser(ctx context.Context, userID uuid.UUID, event string, payload interface{})
	JoinChat(ctx context.Context, chatID uuid.UUID, userIDs ...uuid.UUID)
	DropChat(ctx context.Context, chatID uuid.UUID)
}

type nopNotifier struct{}

func (nopNotifier) ToChat(context.Context, uuid.UUID, string, interface{}, ...uuid.UUID) {}
func (nopNotifier) ToUser(context.Context, uuid.UUID, string, interface{})               {}
func (nopNotifier) JoinChat(context.Context, uuid.UUID, ...uuid.UUID)                    {}
func (nopNotifier) DropChat(context.Context, uuid.UUID)                                  {}
