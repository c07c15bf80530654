package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Channel (long polling) and domain.Notifier.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)
	parseMode string
	texts     *bot.Texts

	bus    domain.MessageBus
	logger *slog.Logger

	// The bot client connects lazily: a missing token degrades to failing
	// sends instead of failing startup.
	botMu sync.Mutex
	bot   *tgbotapi.BotAPI
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // User IDs as strings
	ParseMode string
	Texts     *bot.Texts
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "HTML"
	}
	if cfg.Texts == nil {
		cfg.Texts = bot.DefaultTexts()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		texts:     cfg.Texts,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) connect() (*tgbotapi.BotAPI, error) {
	t.botMu.Lock()
	defer t.botMu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	if t.token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	b, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = b
	t.logger.Info("telegram bot connected",
		"username", b.Self.UserName,
		"id", b.Self.ID,
	)
	return b, nil
}

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus
	t.RegisterOutbound(bus)

	b, err := t.connect()
	if err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			b.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.HandleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error {
	return nil
}

// RegisterOutbound wires conversational replies from the bus to Telegram.
// Called by Start; webhook-mode deployments call it directly since nothing
// starts the polling loop there.
func (t *Telegram) RegisterOutbound(bus domain.MessageBus) {
	t.bus = bus
	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		// Best effort: conversational replies are not retried beyond the
		// per-chunk backoff.
		if err := t.send(msg.ChatID, msg.Text, msg.HTML, msg.WithKeyboard); err != nil {
			t.logger.Error("telegram reply failed", "chat_id", msg.ChatID, "err", err)
		}
	})
}

// Notify implements domain.Notifier for the delivery sweep.
func (t *Telegram) Notify(ctx context.Context, chatID int64, text string, withKeyboard bool) error {
	return t.send(chatID, text, true, withKeyboard)
}

// HandleUpdate converts one Telegram update into an inbound bus event.
// Updates that carry no usable message (callbacks, stickers, joins) are
// dropped silently: transport noise never faults the handler.
func (t *Telegram) HandleUpdate(update tgbotapi.Update) {
	msg, ok := inboundFromUpdate(update)
	if !ok {
		return
	}

	if !allowed(t.allowFrom, msg.From.ID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", msg.From.ID,
			"username", msg.From.Username,
		)
		return
	}

	t.logger.Info("telegram message received",
		"user_id", msg.From.ID,
		"chat_id", msg.ChatID,
		"text_len", len(msg.Text),
	)

	t.bus.Publish(msg)
}

// inboundFromUpdate extracts the message (or edited message, which the bot
// treats the same) from an update. Shared with the webhook transport.
func inboundFromUpdate(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil {
		m = update.EditedMessage
	}
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		Channel: "telegram",
		ChatID:  m.Chat.ID,
		From: domain.User{
			ID:        m.From.ID,
			Username:  m.From.UserName,
			FirstName: m.From.FirstName,
		},
		Text:      text,
		Timestamp: time.Unix(int64(m.Date), 0),
	}, true
}

func allowed(allowFrom []int64, userID int64) bool {
	if len(allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// keyboard is the persistent one-button reply keyboard.
func (t *Telegram) keyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(t.texts.CreateButton),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// send splits long messages into chunks (Telegram caps messages at 4096
// chars). The keyboard, when requested, rides on the last chunk.
func (t *Telegram) send(chatID int64, text string, asHTML, withKeyboard bool) error {
	chunks := splitMessage(text, telegramMaxMsgLen)
	for i, chunk := range chunks {
		last := i == len(chunks)-1
		if err := t.sendChunk(chatID, chunk, asHTML, withKeyboard && last); err != nil {
			return err
		}
	}
	return nil
}

// splitMessage breaks text into chunks of at most maxLen bytes, preferring
// newline boundaries.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try the configured parse mode first, fall back to plain text on
// parse errors, back off on transient failures.
func (t *Telegram) sendChunk(chatID int64, text string, asHTML, withKeyboard bool) error {
	b, err := t.connect()
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && asHTML {
			msg.ParseMode = t.parseMode
		}
		if withKeyboard {
			msg.ReplyMarkup = t.keyboard()
		}

		_, err = b.Send(msg)
		if err == nil {
			return nil
		}

		errStr := err.Error()

		// Handle Telegram rate limiting (HTTP 429).
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		// Parse error on first attempt — immediately retry as plain text.
		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram parse error, retrying as plain text",
				"err", err, "parseMode", t.parseMode,
			)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if withKeyboard {
				plainMsg.ReplyMarkup = t.keyboard()
			}
			if _, err2 := b.Send(plainMsg); err2 == nil {
				return nil
			}
			// Plain also failed — fall through to backoff loop.
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
	}

	return fmt.Errorf("telegram send to %d failed after %d attempts: %w", chatID, telegramMaxSendRetries+1, err)
}
