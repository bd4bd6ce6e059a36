package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-intake/app/api"
	"github.com/lysyi3m/rss-intake/app/cfg"
	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
	"github.com/lysyi3m/rss-intake/app/metrics"
	"github.com/lysyi3m/rss-intake/app/rss"
	"github.com/lysyi3m/rss-intake/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// help was shown
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting RSS Intake", "version", appCfg.Version, "port", appCfg.Port)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load feed configurations", "dir", appCfg.FeedsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Feed configurations loaded", "dir", appCfg.FeedsDir, "count", configCache.GetConfigCount())

	feedRepo := database.NewFeedRepository(db)
	itemRepo := database.NewItemRepository(db)

	httpClient := &http.Client{}
	manager := rss.NewManager(
		rss.AdapterConfig{
			Timeout:   appCfg.FetchTimeoutDuration(),
			UserAgent: appCfg.UserAgent,
		},
		rss.WithSource(rss.NewHTTPSource(
			rss.WithHTTPClient(httpClient),
			rss.WithRateLimit(appCfg.FetchRateLimit),
		)),
		rss.WithObserver(metrics.ObserveFetch),
	)
	slog.Info("Feed adapters registered", "adapters", manager.Adapters())

	filterer := feed.NewFilterer()
	scheduler := tasks.NewScheduler(configCache, feedRepo, itemRepo, manager, httpClient,
		feed.NewParser(), filterer, feed.NewContentExtractor())
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(configCache, feedRepo, itemRepo, filterer, manager, scheduler)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // discovery probes several URLs
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("RSS Intake stopped")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
