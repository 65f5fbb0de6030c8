// Package notify delivers fire-and-forget operator notifications.
//
// The engine treats the sink as best-effort: a delivery failure is logged
// and forgotten, never surfaced to the trading path.
package notify

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier is the notification sink the engine talks to.
type Notifier interface {
	Send(text string)
}

// Noop discards every message. Used when notifications are disabled.
type Noop struct{}

func (Noop) Send(string) {}

// Telegram delivers messages to one chat with HTML formatting. Sends run on
// their own goroutine so a slow Telegram API never stalls a trading cycle.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegram connects the bot API. An invalid token fails here, not at
// send time.
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: logger.With("component", "notify"),
	}, nil
}

// Send delivers one HTML-formatted message asynchronously.
func (t *Telegram) Send(text string) {
	go func() {
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Warn("notification delivery failed", "error", err)
		}
	}()
}
