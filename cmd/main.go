// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/0x0BSoD/repofeed/internal/api"
	"github.com/0x0BSoD/repofeed/internal/bot"
	"github.com/0x0BSoD/repofeed/internal/bot/middleware"
	"github.com/0x0BSoD/repofeed/internal/botkit"
	"github.com/0x0BSoD/repofeed/internal/config"
	"github.com/0x0BSoD/repofeed/internal/generator"
	"github.com/0x0BSoD/repofeed/internal/publisher"
	"github.com/0x0BSoD/repofeed/internal/reporter"
	"github.com/0x0BSoD/repofeed/internal/scheduler"
	"github.com/0x0BSoD/repofeed/internal/service"
	"github.com/0x0BSoD/repofeed/internal/source"
	"github.com/0x0BSoD/repofeed/internal/staleness"
	"github.com/0x0BSoD/repofeed/internal/storage"
	"github.com/0x0BSoD/repofeed/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type recordStore interface {
	generator.RecordStore
	service.RecordStore
	scheduler.RecordProvider
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("[ERROR] failed to load config: %v", err)
		return
	}

	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var records recordStore
	switch cfg.DatabaseDriver {
	case "memory":
		records = storage.NewMemoryStorage()
	default:
		db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
		if err != nil {
			log.Printf("[ERROR] failed to connect to db: %v", err)
			return
		}
		defer db.Close()

		pg := storage.NewRepositoryStorage(db)
		if err := pg.Ensure(ctx); err != nil {
			log.Printf("[ERROR] failed to create schema: %v", err)
			return
		}
		records = pg
	}

	feedPublisher, err := publisher.New(publisher.Options{
		Endpoint:      cfg.StorageEndpoint,
		AccessKey:     cfg.StorageAccessKey,
		SecretKey:     cfg.StorageSecretKey,
		Bucket:        cfg.StorageBucket,
		Region:        cfg.StorageRegion,
		UseSSL:        cfg.StorageUseSSL,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		log.Printf("[ERROR] failed to create publisher: %v", err)
		return
	}

	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Printf("[ERROR] failed to create botAPI: %v", err)
			return
		}
	}

	var failureReporter *reporter.Reporter
	if botAPI != nil {
		failureReporter = reporter.New(botAPI, cfg.TelegramAdminChatID)
	}

	var (
		gateway = source.NewGitHub(source.Options{
			BaseURL:  cfg.GitHubAPIURL,
			Token:    cfg.GitHubToken,
			PerPage:  cfg.GitHubPerPage,
			Interval: cfg.GitHubRequestInterval,
		})
		policy = staleness.New(cfg.StalenessWindow)
		gen    = generator.New(
			records,
			gateway,
			feedPublisher,
			failureReporter,
			cfg.FetchTimeout,
			cfg.GenerationLease,
		)
		queue = worker.New(gen, cfg.Workers, cfg.QueueSize)
		svc   = service.New(records, gen, queue, gateway, policy, cfg.VerifyUpstream)
		sched = scheduler.New(records, queue, policy, cfg.ScheduleInterval, cfg.GenerationLease)
	)

	workersDone := make(chan struct{})
	go func(ctx context.Context) {
		defer close(workersDone)
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[ERROR] failed to run workers: %v", err)
			return
		}
		log.Printf("[INFO] workers stopped")
	}(ctx)

	go func(ctx context.Context) {
		if err := sched.Start(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Printf("[ERROR] failed to run scheduler: %v", err)
				return
			}

			log.Printf("[INFO] scheduler stopped")
		}
	}(ctx)

	server := api.NewServer(svc)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] failed to run http server: %v", err)
			cancel()
		}
	}()

	if botAPI != nil {
		adminBot := botkit.New(botAPI)
		for cmd, view := range map[string]botkit.ViewFunc{
			"track":     bot.ViewCmdTrack(svc),
			"generate":  bot.ViewCmdGenerate(svc),
			"feeds":     bot.ViewCmdFeeds(svc),
			"list":      bot.ViewCmdList(svc),
			"pending":   bot.ViewCmdPending(svc),
			"setstatus": bot.ViewCmdSetStatus(svc),
		} {
			adminBot.RegisterCmdView(cmd, middleware.AdminsOnly(cfg.TelegramAdminIDs, view))
		}

		if err := adminBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[ERROR] failed to run botkit: %v", err)
		}
	} else {
		<-ctx.Done()
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] failed to stop http server: %v", err)
	}

	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Printf("[ERROR] workers did not stop in time")
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
