package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	adminChats map[uuid.UUID]bool
	admins     map[uuid.UUID]bool
	sent       int64
	since      time.Time
	err        error
	countErr   error
}

func (f *fakeStore) ChatHasAdmin(_ context.Context, chatID uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.adminChats[chatID], nil
}

func (f *fakeStore) AnyAdmin(_ context.Context, userIDs []uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, id := range userIDs {
		if f.admins[id] {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CountSentToAdminChats(_ context.Context, _ uuid.UUID, since time.Time) (int64, error) {
	f.since = since
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.sent, nil
}

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestLimiter(store Store) *Limiter {
	return NewLimiter(store, 10, time.Hour).WithClock(func() time.Time { return fixedNow })
}

func TestLimiter_AllowsUnderLimit(t *testing.T) {
	chatID := uuid.New()
	store := &fakeStore{adminChats: map[uuid.UUID]bool{chatID: true}, sent: 9}

	err := newTestLimiter(store).Check(context.Background(), uuid.New(), false, Target{ChatID: chatID})

	assert.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-time.Hour), store.since, "counts the trailing window")
}

func TestLimiter_RejectsAtLimit(t *testing.T) {
	chatID := uuid.New()
	store := &fakeStore{adminChats: map[uuid.UUID]bool{chatID: true}, sent: 10}

	err := newTestLimiter(store).Check(context.Background(), uuid.New(), false, Target{ChatID: chatID})

	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 10, exceeded.Limit)
	assert.Equal(t, int64(10), exceeded.MessagesSent)
	assert.Equal(t, fixedNow.Add(time.Hour), exceeded.ResetTime)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestLimiter_AdminNeverLimited(t *testing.T) {
	chatID := uuid.New()
	store := &fakeStore{adminChats: map[uuid.UUID]bool{chatID: true}, sent: 1000}

	err := newTestLimiter(store).Check(context.Background(), uuid.New(), true, Target{ChatID: chatID})

	assert.NoError(t, err)
}

func TestLimiter_IgnoresChatsWithoutAdmin(t *testing.T) {
	store := &fakeStore{adminChats: map[uuid.UUID]bool{}, sent: 1000}

	err := newTestLimiter(store).Check(context.Background(), uuid.New(), false, Target{ChatID: uuid.New()})

	assert.NoError(t, err)
}

func TestLimiter_ProspectiveParticipants(t *testing.T) {
	admin := uuid.New()
	store := &fakeStore{admins: map[uuid.UUID]bool{admin: true}, sent: 10}
	limiter := newTestLimiter(store)

	err := limiter.Check(context.Background(), uuid.New(), false, Target{ParticipantIDs: []uuid.UUID{uuid.New(), admin}})
	var exceeded *ExceededError
	assert.ErrorAs(t, err, &exceeded)

	err = limiter.Check(context.Background(), uuid.New(), false, Target{ParticipantIDs: []uuid.UUID{uuid.New()}})
	assert.NoError(t, err)

	err = limiter.Check(context.Background(), uuid.New(), false, Target{})
	assert.NoError(t, err)
}

func TestLimiter_FailsOpen(t *testing.T) {
	chatID := uuid.New()

	lookupFails := &fakeStore{err: errors.New("db down"), sent: 100}
	assert.NoError(t, newTestLimiter(lookupFails).Check(context.Background(), uuid.New(), false, Target{ChatID: chatID}))

	countFails := &fakeStore{adminChats: map[uuid.UUID]bool{chatID: true}, countErr: errors.New("db down")}
	assert.NoError(t, newTestLimiter(countFails).Check(context.Background(), uuid.New(), false, Target{ChatID: chatID}))
}

func TestLimiter_Status(t *testing.T) {
	store := &fakeStore{sent: 4}

	usage, err := newTestLimiter(store).Status(context.Background(), uuid.New(), false)

	require.NoError(t, err)
	assert.Equal(t, Usage{
		Limit:        10,
		MessagesSent: 4,
		Remaining:    6,
		ResetTime:    fixedNow.Add(time.Hour),
		IsLimited:    false,
	}, usage)
}

func TestLimiter_StatusOverLimit(t *testing.T) {
	store := &fakeStore{sent: 12}

	usage, err := newTestLimiter(store).Status(context.Background(), uuid.New(), false)

	require.NoError(t, err)
	assert.True(t, usage.IsLimited)
	assert.Equal(t, int64(0), usage.Remaining)
}

func TestLimiter_StatusAdmin(t *testing.T) {
	store := &fakeStore{sent: 50}

	usage, err := newTestLimiter(store).Status(context.Background(), uuid.New(), true)

	require.NoError(t, err)
	assert.False(t, usage.IsLimited)
	assert.Equal(t, int64(10), usage.Remaining)
}

func TestLimiter_StatusError(t *testing.T) {
	store := &fakeStore{countErr: errors.New("db down")}

	_, err := newTestLimiter(store).Status(context.Background(), uuid.New(), false)

	assert.Error(t, err)
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(&fakeStore{}, 0, 0)
	assert.Equal(t, DefaultLimit, l.limit)
	assert.Equal(t, DefaultWindow, l.window)
}
