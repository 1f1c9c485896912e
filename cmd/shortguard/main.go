package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ddanshin/shortguard/internal/config"
	"github.com/ddanshin/shortguard/internal/handler"
	"github.com/ddanshin/shortguard/internal/notifier"
	"github.com/ddanshin/shortguard/internal/repository"
	"github.com/ddanshin/shortguard/internal/service"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	sugar.Infow("Starting shortguard")

	cfg, err := config.ParseFlags()
	if err != nil {
		sugar.Fatalw("Configuration error", "error", err.Error())
	}

	sugar.Infow("Configuration loaded",
		"server_address", cfg.ServerAddress,
		"base_url", cfg.BaseURL,
		"notify_tick", cfg.NotifyTick,
		"storage", storageKind(cfg.DatabaseDSN),
	)

	var store repository.Store
	if cfg.DatabaseDSN != "" {
		pgStore, err := repository.NewPostgresStore(cfg.DatabaseDSN)
		if err != nil {
			sugar.Fatalw("Failed to initialize PostgreSQL store", "error", err.Error())
		}
		store = pgStore
	} else {
		store = repository.NewMemoryStore()
	}
	defer store.Close()

	resolver := service.NewResolver(store, logger)
	election := service.NewElection(store, logger)
	health := service.NewHealth(store, logger)

	channel := notifier.NewTelegramChannel(cfg.TelegramBotToken, cfg.TelegramAPIURL, cfg.ChannelTimeout)
	scheduler := notifier.NewScheduler(store, channel, resolver, cfg.BaseURL, logger)

	if cfg.TelegramBotToken != "" {
		if err := scheduler.Start(cfg.NotifyTick); err != nil {
			sugar.Fatalw("Failed to start notification scheduler", "error", err.Error())
		}
		defer scheduler.Stop()
	} else {
		sugar.Infow("Telegram bot token not set, notification scheduler disabled")
	}

	h := handler.NewHandler(store, resolver, election, health, cfg.BaseURL, logger)
	r := h.SetupRouter(cfg.AdminToken)

	sugar.Infow("Server starting", "address", cfg.ServerAddress)

	if err := http.ListenAndServe(cfg.ServerAddress, r); err != nil {
		sugar.Fatalw(err.Error(), "event", "start server")
	}
}

func storageKind(dsn string) string {
	if dsn != "" {
		return "postgres"
	}
	return "memory"
}
