package middleware

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/0x0BSoD/repofeed/internal/botkit"
)

// AdminsOnly runs next only for messages sent by one of adminIDs. Other
// senders get no reply.
func AdminsOnly(adminIDs []int64, next botkit.ViewFunc) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.Sender, update tgbotapi.Update) error {
		if update.Message == nil || update.Message.From == nil {
			return nil
		}

		if !lo.Contains(adminIDs, update.Message.From.ID) {
			slog.Warn("rejected command from non-admin", "user_id", update.Message.From.ID, "cmd", update.Message.Command())
			return nil
		}

		return next(ctx, bot, update)
	}
}
