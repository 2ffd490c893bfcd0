package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/0x0BSoD/repofeed/internal/botkit"
	"github.com/0x0BSoD/repofeed/internal/botkit/markup"
	"github.com/0x0BSoD/repofeed/internal/model"
	"github.com/0x0BSoD/repofeed/internal/service"
)

const parseModeMarkdownV2 = "MarkdownV2"

type RepositorySearcher interface {
	Search(ctx context.Context, githubURL string) (service.SearchResult, error)
}

// ViewCmdTrack handles /track <github url>: the repository is looked up and
// added if it is not tracked yet.
func ViewCmdTrack(searcher RepositorySearcher) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.Sender, update tgbotapi.Update) error {
		args := botkit.Args(update)
		if len(args) != 1 {
			return reply(bot, update, "Usage: /track https://github.com/{owner}/{repo}")
		}

		res, err := searcher.Search(ctx, args[0])
		switch {
		case errors.Is(err, model.ErrInvalidURL):
			return reply(bot, update, fmt.Sprintf("Not a GitHub repository URL: %v", err))
		case errors.Is(err, model.ErrNotFound):
			return reply(bot, update, "Repository not found on GitHub")
		case err != nil:
			return err
		}

		verb := "Tracking"
		if res.Found {
			verb = "Already tracking"
		}

		msgText := fmt.Sprintf(
			"%s %s\\. ID: `%s`, status: *%s*",
			verb,
			markup.EscapeForMarkdown(res.Identity.String()),
			res.Repository.ID,
			markup.EscapeForMarkdown(string(res.Repository.Status)),
		)
		return replyMarkdown(bot, update, msgText)
	}
}

func reply(bot botkit.Sender, update tgbotapi.Update, text string) error {
	_, err := bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, text))
	return err
}

func replyMarkdown(bot botkit.Sender, update tgbotapi.Update, text string) error {
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, text)
	msg.ParseMode = parseModeMarkdownV2
	_, err := bot.Send(msg)
	return err
}
