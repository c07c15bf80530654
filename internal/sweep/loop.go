package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop drives a Sweeper on a fixed interval. Runs are sequential within one
// Loop, so interval-triggered sweeps never overlap each other.
type Loop struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewLoop(sweeper *Sweeper, interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Loop{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start blocks until the context is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.logger.Info("sweep loop started", "interval", l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sweep loop stopping")
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			delivered, err := l.sweeper.Run(ctx)
			if err != nil {
				l.logger.Error("sweep failed", "err", err)
				continue
			}
			if delivered > 0 {
				l.logger.Info("sweep complete", "delivered", delivered)
			}
		}
	}
}

// Stop halts the loop. Safe to call multiple times.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}
