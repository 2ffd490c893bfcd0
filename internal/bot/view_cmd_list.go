package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/0x0BSoD/repofeed/internal/botkit"
	"github.com/0x0BSoD/repofeed/internal/botkit/markup"
	"github.com/0x0BSoD/repofeed/internal/model"
)

// maxListed keeps list replies under the Telegram message size limit.
const maxListed = 50

type RepositoryLister interface {
	GetAll(ctx context.Context) ([]model.Repository, error)
	GetPending(ctx context.Context) ([]model.Repository, error)
}

func ViewCmdList(lister RepositoryLister) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.Sender, update tgbotapi.Update) error {
		repos, err := lister.GetAll(ctx)
		if err != nil {
			return err
		}
		return replyMarkdown(bot, update, formatRepositories(repos))
	}
}

func ViewCmdPending(lister RepositoryLister) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.Sender, update tgbotapi.Update) error {
		repos, err := lister.GetPending(ctx)
		if err != nil {
			return err
		}
		return replyMarkdown(bot, update, formatRepositories(repos))
	}
}

func formatRepositories(repos []model.Repository) string {
	if len(repos) == 0 {
		return "No repositories"
	}

	lines := lo.Map(lo.Slice(repos, 0, maxListed), func(r model.Repository, _ int) string {
		return fmt.Sprintf("• %s `%s` *%s*",
			markup.EscapeForMarkdown(r.Identity().String()),
			r.ID,
			markup.EscapeForMarkdown(string(r.Status)),
		)
	})
	if len(repos) > maxListed {
		lines = append(lines, markup.EscapeForMarkdown(fmt.Sprintf("... and %d more", len(repos)-maxListed)))
	}

	return strings.Join(lines, "\n")
}
