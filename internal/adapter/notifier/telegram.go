package notifier

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dockdump/internal/domain"
)

// Sender is the part of tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot          Sender
	chatID       int64
	onlyFailures bool
}

func NewTelegramBot(token string, chatID int64, onlyFailures bool) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegram(bot, chatID, onlyFailures), nil
}

func NewTelegram(bot Sender, chatID int64, onlyFailures bool) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, onlyFailures: onlyFailures}
}

func (t *Telegram) Notify(ctx context.Context, event domain.Event) error {
	text, ok := t.format(event)
	if !ok {
		return nil
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func (t *Telegram) format(event domain.Event) (string, bool) {
	switch event.Kind {
	case domain.EventStart:
		return "", false
	case domain.EventLog:
		failed := strings.HasPrefix(event.Message, "FAILURE")
		if t.onlyFailures && !failed {
			return "", false
		}
		if failed {
			return "❌ " + event.Message, true
		}
		return "✅ " + event.Message, true
	case domain.EventSuccess, domain.EventFail:
		if t.onlyFailures && event.Kind == domain.EventSuccess {
			return "", false
		}
		title := "✅ Backup Run Completed"
		if event.Kind == domain.EventFail {
			title = "❌ Backup Run Failed"
		}
		return fmt.Sprintf(
			"%s\n\n"+
				"🆔 Run: %s\n"+
				"📁 New: %d files (%.2f MB)\n"+
				"🗑 Purged: %d files (%.2f MB)\n"+
				"🕐 Time: %s",
			title,
			event.RunID,
			event.NewFiles, megabytes(event.NewBytes),
			event.PurgedFiles, megabytes(event.PurgedBytes),
			event.Timestamp.Format("2006-01-02 15:04:05 MST"),
		), true
	default:
		return "", false
	}
}

func megabytes(n uint64) float64 {
	return float64(n) / (1024 * 1024)
}
