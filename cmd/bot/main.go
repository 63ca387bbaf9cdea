// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/firtigh/firtigh/internal/bot"
	"github.com/firtigh/firtigh/internal/bot/handlers"
	"github.com/firtigh/firtigh/internal/bot/tasks"
	"github.com/firtigh/firtigh/internal/classify"
	"github.com/firtigh/firtigh/internal/config"
	"github.com/firtigh/firtigh/internal/database"
	"github.com/firtigh/firtigh/internal/gemini"
	"github.com/firtigh/firtigh/internal/groups"
	"github.com/firtigh/firtigh/internal/ledger"
	"github.com/firtigh/firtigh/internal/logger"
	"github.com/firtigh/firtigh/internal/prompt"
	"github.com/firtigh/firtigh/internal/telegram"
	"github.com/firtigh/firtigh/internal/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// ai client, group state, accounting, bot, scheduler), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
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

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	groupState := groups.NewManager(
		database.NewGroupBackend(store, log),
		groups.Limits{
			HistoryCap:       cfg.Context.HistoryCap,
			SnippetsPerTopic: cfg.Context.SnippetsPerTopic,
			ProfileEntries:   cfg.Context.ProfileEntries,
		},
		log,
	)
	usage := ledger.New(store, log)

	quota := tools.NewQuota(store, map[tools.Capability]int{
		tools.CapWebSearch:   cfg.Limits.DailySearch,
		tools.CapLinkExtract: cfg.Limits.DailyMedia,
	}, log)

	// The persona instruction is set after GetMe, once the bot's identity
	// is known.
	assembler := prompt.NewAssembler(
		classify.New(cfg.Context.ShortThreshold),
		groupState,
		tools.NewSelector(),
		quota,
		gemClient,
		&ledgerRecorder{usage},
		prompt.AssemblerConfig{
			HistoryBudget: cfg.Context.HistoryBudget,
			Mandatory:     []tools.Capability{tools.CapChatHistory},
		},
		log,
	)

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        store,
		GeminiClient: gemClient,
		Groups:       groupState,
		Assembler:    assembler,
		Ledger:       usage,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewMentionHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	assembler.SetInstruction(fmt.Sprintf(gemini.ChatSystemInstruction,
		cfg.Telegram.BotInfo.FirstName, cfg.Telegram.BotInfo.Username))

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, cfg, db, store, gemClient, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}

// ledgerRecorder adapts the usage ledger to the assembler's recorder
// interface.
type ledgerRecorder struct {
	ledger *ledger.Ledger
}

func (r *ledgerRecorder) Record(ctx context.Context, groupID int64, model string, promptTokens, outputTokens int) error {
	return r.ledger.Record(ctx, groupID, model, promptTokens, outputTokens)
}
