// Package main is the entry point for the attendance bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-zao-bot/internal/bot"
	"telegram-zao-bot/internal/config"
	"telegram-zao-bot/internal/messages"
	"telegram-zao-bot/internal/scheduler"
	"telegram-zao-bot/internal/service"
	"telegram-zao-bot/internal/storage"
)

func main() {
	// Best-effort .env load for local development
	_ = godotenv.Load()

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("engine", cfg.Storage.Engine).
		Str("timezone", cfg.Bot.Timezone).
		Int("cutoff_hour", cfg.Calendar.CutoffHour).
		Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the configured storage engine and migrate
	store, err := storage.Open(ctx, cfg.StoreConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Load message templates
	msgs, err := messages.Load(cfg.Messages.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load message templates")
	}

	loc := cfg.Location()
	cutoff := cfg.Calendar.CutoffHour

	// Initialize services
	sessionService := service.NewSessionService(store, cutoff)
	achievementService := service.NewAchievementService(store, cutoff, cfg.Achievements.OntimeRepeatable)
	rankingService := service.NewRankingService(store, cutoff)
	reminderService := service.NewReminderService(store, loc)
	rouletteService := service.NewRouletteService(store)
	rspService := service.NewRSPService(store)

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:       cfg,
		Store:        store,
		Messages:     msgs,
		Sessions:     sessionService,
		Achievements: achievementService,
		Ranking:      rankingService,
		Reminders:    reminderService,
		Roulette:     rouletteService,
		RSP:          rspService,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Start the reminder poll loop
	reminderScheduler, err := scheduler.New(reminderService, telegramBot, msgs, cfg.Reminders.PollInterval, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	reminderScheduler.Start()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	reminderScheduler.Stop()
	log.Info().Msg("Bot stopped gracefully")
}
