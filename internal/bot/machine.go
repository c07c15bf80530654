package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"remindbot/internal/domain"
)

// StartCommand resets the conversation from any stage.
const StartCommand = "/start"

// CreateCommand is the command alias for the keyboard's create button.
const CreateCommand = "/remind"

// Reply is one outbound message produced by a transition.
type Reply struct {
	Text         string
	HTML         bool
	WithKeyboard bool
}

// Transition is the outcome of feeding one inbound message to the machine:
// the state to persist, the replies to send, and, when the flow completed,
// the reminder to commit.
type Transition struct {
	Next    domain.ConversationState
	Replies []Reply
	Commit  *domain.Reminder
}

// Machine is the per-user conversation state machine. Transition is pure:
// persistence and delivery are the handler's job, so every edge is testable
// without a store or a network.
type Machine struct {
	texts *Texts
}

func NewMachine(texts *Texts) *Machine {
	if texts == nil {
		texts = DefaultTexts()
	}
	return &Machine{texts: texts}
}

func (m *Machine) Texts() *Texts { return m.texts }

// Transition consumes one inbound message and the current state and produces
// the next state plus outbound replies. The flow is strictly linear
// (idle → wait_message → wait_date → wait_time → idle) with two loop-back
// error edges: a bad date keeps wait_date, a bad or past time keeps
// wait_time with the date retained.
func (m *Machine) Transition(user domain.User, text string, cur domain.ConversationState, now time.Time) Transition {
	text = strings.TrimSpace(text)
	next := domain.ConversationState{UserID: user.ID, Stage: cur.Stage, Draft: cur.Draft}

	// Stage-independent edges: start and the create trigger work everywhere.
	switch text {
	case StartCommand:
		next.Stage = domain.StageIdle
		next.Draft = domain.Draft{}
		return Transition{Next: next, Replies: []Reply{{
			Text:         fmt.Sprintf(m.texts.Welcome, user.FirstName),
			WithKeyboard: true,
		}}}
	case m.texts.CreateButton, CreateCommand:
		next.Stage = domain.StageWaitMessage
		next.Draft = domain.Draft{}
		return Transition{Next: next, Replies: []Reply{{Text: m.texts.AskMessage}}}
	}

	switch cur.Stage {
	case domain.StageWaitMessage:
		if text == "" {
			return Transition{Next: next, Replies: []Reply{{Text: m.texts.AskMessage}}}
		}
		next.Stage = domain.StageWaitDate
		next.Draft = domain.Draft{Message: text}
		return Transition{Next: next, Replies: []Reply{{Text: m.texts.AskDate}}}

	case domain.StageWaitDate:
		if _, err := ParseDate(text); err != nil {
			// Stay in wait_date, draft unchanged.
			return Transition{Next: next, Replies: []Reply{{Text: m.texts.BadDate}}}
		}
		next.Stage = domain.StageWaitTime
		next.Draft.Date = text
		return Transition{Next: next, Replies: []Reply{{Text: m.texts.AskTime}}}

	case domain.StageWaitTime:
		at, err := CombineDateTime(cur.Draft.Date, text)
		if err != nil {
			return Transition{Next: next, Replies: []Reply{{Text: m.texts.BadTime}}}
		}
		if !at.After(now) {
			// Date is retained; only the time is re-requested.
			return Transition{Next: next, Replies: []Reply{{Text: m.texts.PastTime}}}
		}
		next.Stage = domain.StageIdle
		next.Draft = domain.Draft{}
		return Transition{
			Next: next,
			Replies: []Reply{{
				Text:         fmt.Sprintf(m.texts.Saved, html.EscapeString(cur.Draft.Message), cur.Draft.Date, text),
				HTML:         true,
				WithKeyboard: true,
			}},
			Commit: &domain.Reminder{UserID: user.ID, Message: cur.Draft.Message, RemindAt: at},
		}

	default:
		// Idle or an unrecognized stored stage: nudge toward the button.
		return Transition{Next: next, Replies: []Reply{{Text: m.texts.Nudge, WithKeyboard: true}}}
	}
}
