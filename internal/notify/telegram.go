package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers notices as chat messages. Recipients who never linked a
// chat are skipped. When shopperChat is set, open requests are also posted
// there for every shopper to see.
type Telegram struct {
	sender      Sender
	shopperChat int64
	log         *slog.Logger
}

func NewTelegram(sender Sender, shopperChat int64, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{sender: sender, shopperChat: shopperChat, log: logger.With("component", "notify.telegram")}
}

func (t *Telegram) Notify(ctx context.Context, to Recipient, n Notice) error {
	if to.TelegramID == 0 {
		t.log.Debug("recipient has no telegram chat", "recipient", to.Email, "event", n.Event)
		return nil
	}
	return t.send(ctx, to.TelegramID, Format(to, n))
}

func (t *Telegram) Announce(ctx context.Context, n Notice) error {
	if t.shopperChat == 0 {
		return nil
	}
	return t.send(ctx, t.shopperChat, FormatAnnouncement(n))
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}

// Log records every notice in the structured log. It is the only backend
// when no chat transport is configured.
type Log struct {
	log *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger.With("component", "notify.log")}
}

func (l *Log) Notify(ctx context.Context, to Recipient, n Notice) error {
	l.log.InfoContext(ctx, "notification",
		"event", n.Event,
		"request_id", n.Request.ID,
		"status", n.Request.Status,
		"recipient", to.Email,
		"role", to.Role,
		"subject", Subject(n))
	return nil
}
