package domain

import "time"

// User is a chat platform identity. Created on first contact; display
// fields are refreshed on every message, the row is never deleted.
type User struct {
	ID        int64
	Username  string
	FirstName string
}

// Stage is the current step of the reminder-creation dialogue for one user.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageWaitMessage Stage = "wait_message"
	StageWaitDate    Stage = "wait_date"
	StageWaitTime    Stage = "wait_time"
)

// Valid reports whether s is one of the known dialogue stages.
func (s Stage) Valid() bool {
	switch s {
	case StageIdle, StageWaitMessage, StageWaitDate, StageWaitTime:
		return true
	}
	return false
}

// Draft holds reminder fields collected so far in a dialogue.
// Message is set from wait_date onward, Date from wait_time onward.
type Draft struct {
	Message string `json:"message,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Empty reports whether no draft fields have been collected.
func (d Draft) Empty() bool { return d.Message == "" && d.Date == "" }

// ConversationState is the durable dialogue position of one user.
// Exactly one row per user; overwritten in place on every transition.
type ConversationState struct {
	UserID int64
	Stage  Stage
	Draft  Draft
}

// Reminder is one scheduled delivery. Rows are never deleted; Sent flips
// false→true exactly once, after a successful dispatch.
type Reminder struct {
	ID       int64
	UserID   int64
	Message  string
	RemindAt time.Time
	Sent     bool
}
