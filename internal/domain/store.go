package domain

import (
	"context"
	"time"
)

// UserStore upserts lightweight user profiles on first contact.
type UserStore interface {
	EnsureUser(ctx context.Context, u User) error
}

// StateStore is the durable per-user conversation state. A user with no
// stored row reads as StageIdle with an empty draft.
type StateStore interface {
	State(ctx context.Context, userID int64) (ConversationState, error)
	SetState(ctx context.Context, st ConversationState) error
}

// ReminderStore is the durable reminder queue. Only the sweep flips Sent.
type ReminderStore interface {
	CreateReminder(ctx context.Context, r Reminder) (int64, error)
	DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	MarkSent(ctx context.Context, id int64) error
}
