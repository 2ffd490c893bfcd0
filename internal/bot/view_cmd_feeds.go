package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/0x0BSoD/repofeed/internal/botkit"
	"github.com/0x0BSoD/repofeed/internal/botkit/markup"
	"github.com/0x0BSoD/repofeed/internal/model"
)

type FeedsProvider interface {
	GetFeeds(ctx context.Context, id string) (model.Feeds, error)
}

func ViewCmdFeeds(provider FeedsProvider) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.Sender, update tgbotapi.Update) error {
		args := botkit.Args(update)
		if len(args) != 1 {
			return reply(bot, update, "Usage: /feeds <id>")
		}

		feeds, err := provider.GetFeeds(ctx, args[0])
		switch {
		case errors.Is(err, model.ErrRecordNotFound):
			return reply(bot, update, "Unknown repository ID")
		case errors.Is(err, model.ErrGenerationInProgress):
			return reply(bot, update, "Feeds are being generated, try again in a minute")
		case err != nil:
			return err
		}

		return replyMarkdown(bot, update, formatFeeds(feeds))
	}
}

func formatFeeds(feeds model.Feeds) string {
	lines := make([]string, 0, len(model.FeedTypes))
	for _, feedType := range model.FeedTypes {
		u := "not available"
		if p := feeds.Get(feedType); p != nil {
			u = *p
		}
		lines = append(lines, fmt.Sprintf("*%s*: %s", feedType.Title(), markup.EscapeForMarkdown(u)))
	}
	return strings.Join(lines, "\n")
}
