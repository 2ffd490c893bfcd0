package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/0x0BSoD/repofeed/internal/botkit"
	"github.com/0x0BSoD/repofeed/internal/model"
)

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status model.Status, message string) (model.Repository, error)
}

// ViewCmdSetStatus handles /setstatus <id> <status> [message].
func ViewCmdSetStatus(updater StatusUpdater) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.Sender, update tgbotapi.Update) error {
		args := botkit.Args(update)
		if len(args) < 2 {
			return reply(bot, update, "Usage: /setstatus <id> <pending|generating|ready|error> [message]")
		}

		rec, err := updater.UpdateStatus(ctx, args[0], model.Status(args[1]), strings.Join(args[2:], " "))
		switch {
		case errors.Is(err, model.ErrInvalidStatus):
			return reply(bot, update, fmt.Sprintf("Unknown status %q", args[1]))
		case errors.Is(err, model.ErrRecordNotFound):
			return reply(bot, update, "Unknown repository ID")
		case err != nil:
			return err
		}

		return reply(bot, update, fmt.Sprintf("%s is now %s", rec.Identity(), rec.Status))
	}
}
