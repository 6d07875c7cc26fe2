// Evwatch - Pinnacle vs BetBCK expected-value watcher
//
// Polls the alert backend for active events, compares Pinnacle no-vig
// prices against BetBCK offered odds, and pushes rendered comparison
// cards to browser clients over websocket. Lines whose EV crosses the
// alert threshold open popup surfaces and fire Telegram notifications.
//
// Flow:
// 1. Poll the backend feed (3s default), skip ticks while a pass runs
// 2. Short-circuit on an unchanged payload signature
// 3. Diff against the last render, compute EV per market line
// 4. Broadcast cards, fire alerts, sweep stale cards out
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evwatch/evwatch/alerts"
	"github.com/evwatch/evwatch/bot"
	"github.com/evwatch/evwatch/core"
	"github.com/evwatch/evwatch/feeds"
	"github.com/evwatch/evwatch/hub"
	"github.com/evwatch/evwatch/internal/config"
	"github.com/evwatch/evwatch/render"
	"github.com/evwatch/evwatch/server"
	"github.com/evwatch/evwatch/storage"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("backend", cfg.BackendURL).
		Dur("interval", cfg.PollInterval).
		Msg("⚡ Evwatch starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ====== CORE COMPONENTS ======

	// 1. Dismissal ledger and alert log
	store, err := storage.Open(cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	// 2. Upstream feed client, wrapped in the last-known-good cache
	client := feeds.NewClient(cfg.BackendURL, cfg.FetchTimeout)
	source := feeds.NewCacheProxy(client, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	defer source.Close()

	// 3. Websocket hub for card and popup broadcasts
	h := hub.NewHub()
	go h.Run(ctx)

	// 4. Reconciliation loop
	renderer := render.NewRenderer(cfg.FlashDuration)
	alertMgr := alerts.NewManager(nil, h, store)
	engine := core.NewEngine(
		source, renderer, store, alertMgr, h, client,
		cfg.PollInterval, cfg.GracePeriod, cfg.MaxCardAge,
	)

	// 5. Telegram bot (optional)
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tgBot, err := bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, engine, store)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to start Telegram bot - alerts disabled")
		} else {
			alertMgr.SetNotifier(tgBot)
			tgBot.Start()
			defer tgBot.Stop()
			tgBot.NotifyStartup()
		}
	} else {
		log.Warn().Msg("⚠️ No Telegram credentials - set TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID for pushes")
	}

	go engine.Start(ctx)

	// 6. HTTP + websocket surface
	srv := server.New(cfg.ListenAddr, engine, h, store)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
		cancel()
		<-serverErr
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	log.Info().Msg("👋 Evwatch stopped")
}
