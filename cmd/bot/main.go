// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/whoasked/internal/bot"
	"github.com/edgard/whoasked/internal/bot/handlers"
	"github.com/edgard/whoasked/internal/bot/tasks"
	"github.com/edgard/whoasked/internal/config"
	"github.com/edgard/whoasked/internal/logger"
	"github.com/edgard/whoasked/internal/store"
	"github.com/edgard/whoasked/internal/telegram"
	"github.com/edgard/whoasked/internal/tracker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// store, tracker, bot, scheduler), handles graceful shutdown, and returns an
// exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	var (
		trackerStore tracker.Store
		maintainer   tasks.Maintainer
	)
	switch cfg.Storage.Driver {
	case "sqlite":
		db, err := store.NewDB(cfg.Storage.Path)
		if err != nil {
			log.Error("Failed to open database", "path", cfg.Storage.Path, "error", err)
			return 1
		}
		defer store.CloseDB(db)
		sqlStore := store.NewSQLStore(db, log)
		trackerStore = sqlStore
		maintainer = sqlStore
	default:
		fileStore := store.NewFileStore(cfg.Storage.Path, log)
		trackerStore = fileStore
		maintainer = fileStore
	}
	log.Info("Storage initialized", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	trk := tracker.New(trackerStore, tracker.Config{
		RetentionDays: cfg.Tracker.RetentionDays,
		MaxMessages:   cfg.Tracker.MaxMessages,
	}, log)
	trk.Load(ctx)

	hDeps := handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Tracker: trk,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Config: cfg,
		Store:  maintainer,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log), handlers.Recovery(hDeps)),
		tgbot.WithDefaultHandler(handlers.NewRecordHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	// Retrieve bot info and store it in the config for runtime use
	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, cfg, trk, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
