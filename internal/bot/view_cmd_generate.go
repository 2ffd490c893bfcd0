package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/0x0BSoD/repofeed/internal/botkit"
	"github.com/0x0BSoD/repofeed/internal/botkit/markup"
	"github.com/0x0BSoD/repofeed/internal/model"
)

type Generator interface {
	ForceGenerate(ctx context.Context, id string) (model.Repository, error)
}

func ViewCmdGenerate(generator Generator) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.Sender, update tgbotapi.Update) error {
		args := botkit.Args(update)
		if len(args) != 1 {
			return reply(bot, update, "Usage: /generate <id>")
		}

		rec, err := generator.ForceGenerate(ctx, args[0])
		switch {
		case errors.Is(err, model.ErrRecordNotFound):
			return reply(bot, update, "Unknown repository ID")
		case errors.Is(err, model.ErrGenerationInProgress):
			return reply(bot, update, "Generation is already running")
		case err != nil && rec.ID == "":
			return err
		}

		if rec.Status == model.StatusError {
			return reply(bot, update, fmt.Sprintf("Generation for %s failed: %s", rec.Identity(), rec.Error))
		}

		return replyMarkdown(bot, update, fmt.Sprintf(
			"Feeds of %s regenerated\n\n%s",
			markup.EscapeForMarkdown(rec.Identity().String()),
			formatFeeds(rec.Feeds),
		))
	}
}
