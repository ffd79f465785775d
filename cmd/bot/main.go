package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/listing_alert_bot/internal/config"
	"github.com/vitos/listing_alert_bot/internal/domain"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/birdeye"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/dexscreener"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/logger"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/metrics"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/solana"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/storage"
	"github.com/vitos/listing_alert_bot/internal/infrastructure/telegram"
	"github.com/vitos/listing_alert_bot/internal/usecase"
	"github.com/vitos/listing_alert_bot/internal/web"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	// 1. Load Config
	cfg, err := config.Load(config.DefaultPath, ".env")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		return 1
	}
	if err := cfg.ValidateNotifier(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		return 1
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.Level, logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Bot crashed", zap.Any("panic", r), zap.Stack("stack"))
			code = 1
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init Storage and Metrics
	store, err := storage.NewSQLiteStore(cfg.Storage.DSN, cfg.Storage.MaxAlerts)
	if err != nil {
		log.Error("Failed to init alert journal", zap.Error(err))
		return 1
	}
	defer store.Close()

	m := metrics.NewMetrics("")

	// 4. Init Upstreams
	source := birdeye.NewClient(cfg.Listing.BaseURL, cfg.Listing.APIKey, cfg.Listing.Chain, cfg.Listing.Limit, cfg.Listing.Timeout.Std())
	resolver := dexscreener.NewClient(cfg.Dexscreener.BaseURL, cfg.Dexscreener.Timeout.Std(), log)

	notifier, err := telegram.NewNotifier(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Timeout.Std(), log)
	if err != nil {
		log.Error("Failed to init telegram notifier", zap.Error(err))
		return 1
	}

	var signals domain.SignalSource = usecase.NoSignals{}
	if cfg.Signals.Enabled() {
		signals = solana.NewHoldingsSource(cfg.Signals.RPCEndpoint, cfg.Signals.Wallets, log,
			solana.WithTimeout(cfg.Signals.Timeout.Std()))
		log.Info("Wallet holdings signals enabled", zap.Int("wallets", len(cfg.Signals.Wallets)))
	}

	// 5. Init Web Server
	var broadcaster domain.AlertBroadcaster
	if cfg.Server.Port > 0 {
		hub := web.NewAlertHub(log)
		broadcaster = hub
		srv := web.NewServer(cfg.Server.Port, store, hub, m.Handler(), log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("Web server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("Web server shutdown failed", zap.Error(err))
			}
		}()
	}

	// 6. Run
	fetcher := usecase.NewListingFetcher(source, resolver, usecase.FetcherConfig{
		Filter:             cfg.Filter.ToDomain(),
		ExcludedAddresses:  cfg.Listing.ExcludedAddresses,
		InitialBackoff:     cfg.Monitor.InitialBackoff.Std(),
		MaxBackoff:         cfg.Monitor.MaxBackoff.Std(),
		ResolveConcurrency: cfg.Listing.ResolveConcurrency,
	}, m, log)

	monitor := usecase.NewMonitorService(fetcher, signals, notifier, store, broadcaster, usecase.MonitorConfig{
		Filter:           cfg.Filter.ToDomain(),
		PollInterval:     cfg.Monitor.PollInterval.Std(),
		NotifyUnknownAge: cfg.Monitor.NotifyUnknownAge,
	}, m, log)

	if err := monitor.Run(ctx); err != nil {
		log.Error("Bot stopped on error", zap.Error(err))
		return 1
	}

	log.Info("Bot stopped by user")
	return 0
}
