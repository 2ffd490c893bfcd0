// Package reporter forwards generation failures to a Telegram admin chat.
package reporter

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/0x0BSoD/repofeed/internal/botkit"
)

// maxMessage is the Telegram limit for a text message.
const maxMessage = 4096

// Reporter is nil-safe: with a nil receiver, no bot or a zero chat id,
// Notify does nothing.
type Reporter struct {
	bot    botkit.Sender
	chatID int64
}

func New(bot botkit.Sender, chatID int64) *Reporter {
	return &Reporter{bot: bot, chatID: chatID}
}

func (r *Reporter) Notify(msg string) {
	if r == nil || r.bot == nil || r.chatID == 0 {
		return
	}

	if runes := []rune(msg); len(runes) > maxMessage {
		msg = string(runes[:maxMessage-3]) + "..."
	}

	if _, err := r.bot.Send(tgbotapi.NewMessage(r.chatID, msg)); err != nil {
		slog.Error("failed to send error notification", "err", err)
	}
}
