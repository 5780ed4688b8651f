package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_Status(t *testing.T) {
	tests := []struct {
		name     string
		approved bool
		blocked  bool
		want     Status
	}{
		{"initial", false, false, StatusPending},
		{"approved", true, false, StatusApproved},
		{"blocked unapproved", false, true, StatusBlocked},
		{"blocked approved", true, true, StatusBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewGate(tt.approved, tt.blocked).Status())
		})
	}
}

func TestGate_CheckSend(t *testing.T) {
	tests := []struct {
		name     string
		gate     Gate
		admin    bool
		existing int64
		wantErr  error
	}{
		{"first message in pending chat", NewGate(false, false), false, 0, nil},
		{"second message in pending chat", NewGate(false, false), false, 1, ErrPendingApproval},
		{"approved chat", NewGate(true, false), false, 42, nil},
		{"blocked chat first message", NewGate(false, true), false, 0, ErrChatBlocked},
		{"blocked approved chat", NewGate(true, true), false, 3, ErrChatBlocked},
		{"admin in blocked chat", NewGate(true, true), true, 3, nil},
		{"admin in pending chat", NewGate(false, false), true, 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.gate.CheckSend(tt.admin, tt.existing)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGate_Transitions(t *testing.T) {
	g := NewGate(false, false)

	g = g.Block()
	assert.Equal(t, StatusBlocked, g.Status())
	assert.False(t, g.AdminApproved(), "block keeps approval untouched")

	g = g.Unblock()
	assert.Equal(t, StatusPending, g.Status(), "unblocking an unapproved chat returns it to pending")

	g = g.Approve()
	assert.Equal(t, StatusApproved, g.Status())

	g = g.Block()
	assert.True(t, g.AdminApproved())
	assert.True(t, g.IsBlocked())

	g = g.Unblock()
	assert.Equal(t, StatusApproved, g.Status())

	g = g.Block().Approve()
	assert.Equal(t, StatusApproved, g.Status(), "approve lifts a block")
	assert.False(t, g.IsBlocked())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "approved", StatusApproved.String())
	assert.Equal(t, "blocked", StatusBlocked.String())
	assert.Equal(t, "unknown", Status(9).String())
}
