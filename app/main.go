package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tastemap/tastemap/app/api"
	"github.com/tastemap/tastemap/app/cfg"
	"github.com/tastemap/tastemap/app/config"
	"github.com/tastemap/tastemap/app/database"
	"github.com/tastemap/tastemap/app/discovery"
	"github.com/tastemap/tastemap/app/extraction"
	"github.com/tastemap/tastemap/app/scheduler"
)

func main() {
	// A .env file is optional; real environment variables win either way.
	godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting TasteMap pipeline", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DataDir)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", db.Path, "schema_version", version, "dirty", dirty)

	subRepo := database.NewSubscriptionRepository(db)
	queueRepo := database.NewQueueRepository(db)
	restaurantRepo := database.NewRestaurantRepository(db)
	logRepo := database.NewLogRepository(db)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	fetcher := discovery.NewYouTubeFetcher(httpClient, appCfg.UserAgent)
	discoveryService := discovery.NewService(subRepo, queueRepo, restaurantRepo, logRepo, fetcher)

	seedSubscriptions(discoveryService, subRepo, appCfg.ChannelsDir)

	worker := extraction.NewHTTPWorker(&http.Client{})
	pipelineScheduler := scheduler.NewScheduler(queueRepo, restaurantRepo, logRepo, worker)

	slog.Info("Starting background workers", "workers", appCfg.WorkerCount,
		"scheduler_interval", appCfg.SchedulerInterval, "poll_interval", appCfg.PollInterval)
	pipelineScheduler.Start()
	defer pipelineScheduler.Stop()

	discoveryService.Start()
	defer discoveryService.Stop()

	handler := api.NewHandler(subRepo, queueRepo, restaurantRepo, logRepo, discoveryService, pipelineScheduler)
	router := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler and discovery service are stopped via defer
	slog.Info("Shutdown complete")
}

// seedSubscriptions upserts channel seed files as subscriptions. Seed
// errors are warnings: a broken seed file must not block startup.
func seedSubscriptions(discoveryService *discovery.Service, subRepo database.SubscriptionRepository, channelsDir string) {
	configs, err := config.NewLoader(channelsDir).LoadAll()
	if err != nil {
		slog.Warn("Failed to load channel seeds", "dir", channelsDir, "error", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seeded := 0
	for _, channelConfig := range configs {
		sub, err := discoveryService.AddSubscription(ctx,
			channelConfig.Channel.URL, channelConfig.Channel.Name,
			channelConfig.Settings.Priority, channelConfig.Settings.CheckIntervalHours)
		if err != nil {
			slog.Warn("Failed to seed subscription", "channel", channelConfig.Channel.Name, "error", err)
			continue
		}

		if sub.Paused != !channelConfig.Settings.Enabled {
			if _, err := subRepo.SetPaused(ctx, sub.ID, !channelConfig.Settings.Enabled); err != nil {
				slog.Warn("Failed to apply seed pause state", "channel", channelConfig.Channel.Name, "error", err)
			}
		}
		seeded++
	}

	slog.Info("Seeded channel subscriptions", "count", seeded, "dir", channelsDir)
}
