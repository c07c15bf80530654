package sweep

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/domain"
	"remindbot/internal/metrics"
)

const defaultBatchSize = 50

// Sweeper finds due, unsent reminders and delivers them. Delivery is
// at-least-once: a reminder is marked sent only after its dispatch
// succeeded, and each mark is committed before the next item is attempted.
type Sweeper struct {
	store     domain.ReminderStore
	notifier  domain.Notifier
	texts     *bot.Texts
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

type Config struct {
	Store     domain.ReminderStore
	Notifier  domain.Notifier
	Texts     *bot.Texts
	Logger    *slog.Logger
	BatchSize int
	Now       func() time.Time // test hook, defaults to time.Now
}

func New(cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Texts == nil {
		cfg.Texts = bot.DefaultTexts()
	}
	return &Sweeper{
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		texts:     cfg.Texts,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
		now:       cfg.Now,
	}
}

// Run performs one sweep and returns the number of reminders delivered.
// A dispatch failure leaves that reminder unsent for the next sweep and does
// not block the rest of the batch.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	metrics.SweepRuns.Inc()

	due, err := s.store.DueReminders(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select due reminders: %w", err)
	}

	delivered := 0
	for _, r := range due {
		text := fmt.Sprintf(s.texts.Delivery, html.EscapeString(r.Message))
		if err := s.notifier.Notify(ctx, r.UserID, text, true); err != nil {
			metrics.DispatchErrors.Inc()
			s.logger.Error("reminder dispatch failed",
				"id", r.ID,
				"user_id", r.UserID,
				"err", err,
			)
			continue
		}
		// Mark immediately, not at the end of the batch: a crash here costs
		// one duplicate delivery, never a skipped one.
		if err := s.store.MarkSent(ctx, r.ID); err != nil {
			s.logger.Error("cannot mark reminder sent, will re-deliver next sweep",
				"id", r.ID,
				"err", err,
			)
			continue
		}
		metrics.RemindersDelivered.Inc()
		delivered++
		s.logger.Info("reminder delivered", "id", r.ID, "user_id", r.UserID)
	}

	return delivered, nil
}
