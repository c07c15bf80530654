package domain

import "time"

// InboundMessage is one chat event as seen by the bot core, regardless of
// which transport (long polling, webhook, CLI) produced it.
type InboundMessage struct {
	Channel   string
	ChatID    int64
	From      User
	Text      string
	Timestamp time.Time
}

// OutboundMessage is a rendered reply heading back to the user.
type OutboundMessage struct {
	Channel      string
	ChatID       int64
	Text         string
	HTML         bool // render with Telegram HTML parse mode
	WithKeyboard bool // attach the persistent "create reminder" keyboard
}
