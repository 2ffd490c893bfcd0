// Package botkit is a small command router on top of the Telegram bot API.
package botkit

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const updateTimeout = 5 * time.Minute

// Sender is the part of *tgbotapi.BotAPI views reply through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type ViewFunc func(ctx context.Context, bot Sender, update tgbotapi.Update) error

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	cmdViews map[string]ViewFunc
}

func New(api *tgbotapi.BotAPI) *Bot {
	return &Bot{api: api, sender: api, cmdViews: make(map[string]ViewFunc)}
}

func (b *Bot) RegisterCmdView(cmd string, view ViewFunc) {
	b.cmdViews[cmd] = view
}

// Run consumes updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
			b.handleUpdate(updateCtx, update)
			cancel()
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic while handling update", "panic", p, "stack", string(debug.Stack()))
		}
	}()

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	cmd := update.Message.Command()
	view, ok := b.cmdViews[cmd]
	if !ok {
		return
	}

	if err := view(ctx, b.sender, update); err != nil {
		slog.Error("failed to handle command", "cmd", cmd, "err", err)
		if _, err := b.sender.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "Internal error")); err != nil {
			slog.Error("failed to send error reply", "err", err)
		}
	}
}

// Args splits the command arguments of the update on whitespace.
func Args(update tgbotapi.Update) []string {
	if update.Message == nil {
		return nil
	}
	return strings.Fields(update.Message.CommandArguments())
}
