package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"remindbot/internal/domain"
	"remindbot/internal/metrics"
)

// Handler wires the state machine to its side effects: the user registry,
// the state store, the reminder store and the outbound bus.
type Handler struct {
	machine   *Machine
	users     domain.UserStore
	states    domain.StateStore
	reminders domain.ReminderStore
	bus       domain.MessageBus
	logger    *slog.Logger
	now       func() time.Time
}

type HandlerConfig struct {
	Machine   *Machine
	Users     domain.UserStore
	States    domain.StateStore
	Reminders domain.ReminderStore
	Bus       domain.MessageBus
	Logger    *slog.Logger
	Now       func() time.Time // test hook, defaults to time.Now
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		machine:   cfg.Machine,
		users:     cfg.Users,
		states:    cfg.States,
		reminders: cfg.Reminders,
		bus:       cfg.Bus,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Run consumes the bus until the context is cancelled or the bus closes.
// Each message is an independent unit of work; a failure is logged and the
// loop moves on.
func (h *Handler) Run(ctx context.Context) {
	in := h.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("bot handler stopping")
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			if err := h.Handle(ctx, msg); err != nil {
				h.logger.Error("message handling failed",
					"channel", msg.Channel,
					"user_id", msg.From.ID,
					"err", err,
				)
			}
		}
	}
}

// Handle processes one inbound chat event end to end. A store failure never
// advances the conversation stage: the state row is written only after the
// reminder commit succeeded, so the user can retry the same input.
func (h *Handler) Handle(ctx context.Context, msg domain.InboundMessage) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		// Transport noise (stickers, joins, empty updates) is acked as a no-op.
		return nil
	}
	metrics.Messages.Inc()

	if err := h.users.EnsureUser(ctx, msg.From); err != nil {
		h.replyTransient(msg)
		return fmt.Errorf("ensure user %d: %w", msg.From.ID, err)
	}

	cur, err := h.states.State(ctx, msg.From.ID)
	if err != nil {
		h.replyTransient(msg)
		return fmt.Errorf("load state for %d: %w", msg.From.ID, err)
	}

	tr := h.machine.Transition(msg.From, text, cur, h.now())

	if tr.Commit != nil {
		// The timestamp was strictly future when the machine checked it;
		// re-validate against the commit-time clock.
		if !tr.Commit.RemindAt.After(h.now()) {
			tr = Transition{Next: cur, Replies: []Reply{{Text: h.machine.Texts().PastTime}}}
		} else {
			id, err := h.reminders.CreateReminder(ctx, *tr.Commit)
			if err != nil {
				h.replyTransient(msg)
				return fmt.Errorf("create reminder for %d: %w", msg.From.ID, err)
			}
			metrics.RemindersCreated.Inc()
			h.logger.Info("reminder created",
				"id", id,
				"user_id", msg.From.ID,
				"remind_at", tr.Commit.RemindAt,
			)
		}
	}

	if err := h.states.SetState(ctx, tr.Next); err != nil {
		h.replyTransient(msg)
		return fmt.Errorf("persist state for %d: %w", msg.From.ID, err)
	}

	for _, r := range tr.Replies {
		h.bus.SendOutbound(domain.OutboundMessage{
			Channel:      msg.Channel,
			ChatID:       msg.ChatID,
			Text:         r.Text,
			HTML:         r.HTML,
			WithKeyboard: r.WithKeyboard,
		})
	}
	return nil
}

// replyTransient sends the generic retry message. Best effort: conversational
// replies are not retried, a dropped reply costs less than a blocked handler.
func (h *Handler) replyTransient(msg domain.InboundMessage) {
	h.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Text:    h.machine.Texts().Transient,
	})
}
