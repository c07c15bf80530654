package domain

import "context"

// Channel is a user-facing transport (Telegram polling, webhook server, CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}

// Notifier delivers a rendered reminder to a chat identity. The delivery
// sweep needs the per-send error to decide whether to mark a reminder sent,
// so dispatch bypasses the fire-and-forget bus.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string, withKeyboard bool) error
}
