package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"remindbot/internal/domain"
)

// CLI implements domain.Channel for a local terminal conversation, useful
// for exercising the dialogue without a Telegram token.
type CLI struct {
	bus    domain.MessageBus
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	userID int64
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	UserID int64 // local pseudo-identity (default 1)
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.UserID == 0 {
		cfg.UserID = 1
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
		userID: cfg.UserID,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL and blocks until EOF, /quit or context cancellation.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("cli", func(msg domain.OutboundMessage) {
		_, _ = fmt.Fprintln(c.out, msg.Text)
		_, _ = fmt.Fprint(c.out, "You> ")
	})

	_, _ = fmt.Fprintln(c.out, "remindbot CLI. Type /start to begin, /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		bus.Publish(domain.InboundMessage{
			Channel:   "cli",
			ChatID:    c.userID,
			From:      domain.User{ID: c.userID, FirstName: "local", Username: "cli"},
			Text:      line,
			Timestamp: time.Now(),
		})
	}
}

func (c *CLI) Stop() error { return nil }

// Notify implements domain.Notifier by printing to the terminal, so
// `remindbot sweep` works in CLI-only setups.
func (c *CLI) Notify(_ context.Context, _ int64, text string, _ bool) error {
	_, _ = fmt.Fprintln(c.out, text)
	return nil
}
