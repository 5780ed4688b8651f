// Package moderation holds the per-chat gate that decides whether a
// non-admin participant may post.
//
// The store keeps two columns (admin_approved, is_blocked). Domain code works
// with Status, an explicit enumeration, and with Gate, which remembers the
// approval bit while a chat is blocked so that unblocking returns the chat to
// where it was.
package moderation

import "errors"

var (
	ErrPendingApproval = errors.New("chat is pending admin approval")
	ErrChatBlocked     = errors.New("chat has been blocked by an admin")
)

type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusBlocked
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Gate is the moderation state of one chat.
type Gate struct {
	approved bool
	blocked  bool
}

// NewGate rebuilds a gate from the persisted flags.
func NewGate(adminApproved, isBlocked bool) Gate {
	return Gate{approved: adminApproved, blocked: isBlocked}
}

// Status collapses the flags. Blocked dominates approval.
func (g Gate) Status() Status {
	switch {
	case g.blocked:
		return StatusBlocked
	case g.approved:
		return StatusApproved
	default:
		return StatusPending
	}
}

// AdminApproved and IsBlocked return the stored column values.
func (g Gate) AdminApproved() bool { return g.approved }
func (g Gate) IsBlocked() bool     { return g.blocked }

// Approve opens the chat for everyone and lifts any block.
func (g Gate) Approve() Gate {
	return Gate{approved: true, blocked: false}
}

// Block rejects every non-admin send. Approval is kept.
func (g Gate) Block() Gate {
	return Gate{approved: g.approved, blocked: true}
}

// Unblock lifts the block only; an unapproved chat goes back to pending.
func (g Gate) Unblock() Gate {
	return Gate{approved: g.approved, blocked: false}
}

// CheckSend reports whether a message may be posted. existingMessages is the
// number of messages already stored for the chat; zero lets the first message
// through before any admin acted.
func (g Gate) CheckSend(senderIsAdmin bool, existingMessages int64) error {
	if senderIsAdmin {
		return nil
	}
	switch g.Status() {
	case StatusBlocked:
		return ErrChatBlocked
	case StatusPending:
		if existingMessages == 0 {
			return nil
		}
		return ErrPendingApproval
	default:
		return nil
	}
}
