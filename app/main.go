package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lysyi3m/rss-relay/app/api"
	"github.com/lysyi3m/rss-relay/app/cfg"
	"github.com/lysyi3m/rss-relay/app/config"
	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/gateway"
	"github.com/lysyi3m/rss-relay/app/logger"
	"github.com/lysyi3m/rss-relay/app/notify"
	"github.com/lysyi3m/rss-relay/app/tasks"
)

func main() {
	if err := run(); err != nil {
		slog.Error("RSS Relay exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	appCfg, err := cfg.Load()
	if err != nil {
		return err
	}
	if appCfg == nil {
		return nil
	}

	logCloser, err := logger.Setup(appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	if err := appCfg.ApplyTimezone(); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", appCfg.Timezone, "error", err)
	}

	slog.Info("Starting RSS Relay", "version", appCfg.Version)

	configPath := config.ResolvePath(appCfg.ConfigPath)
	result, err := config.NewLoader(configPath).Load()
	if result != nil {
		for _, rejected := range result.Rejected {
			slog.Error("Skipping invalid instance", "path", configPath, "error", rejected)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to load instances from %s: %w", configPath, err)
	}
	slog.Info("Loaded instance configuration", "path", configPath, "instances", len(result.Instances))

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := database.NewReferencePostRepository(db)
	if count, err := store.Count(context.Background()); err == nil {
		slog.Info("Connected to database", "path", appCfg.DBPath, "reference_posts", count)
	}

	client := gateway.New(gateway.Options{
		HTTPClient:         &http.Client{Timeout: appCfg.HTTPTimeout},
		Throttle:           semaphore.NewWeighted(int64(appCfg.ConcurrentRequests)),
		UserAgent:          appCfg.UserAgent,
		FallbackUserAgents: appCfg.FallbackUserAgents,
		PostMinInterval:    appCfg.PostMinInterval,
	})

	images := feed.NewImageResolver(client)
	parser := feed.NewParser(images)
	youtube := feed.NewYouTubeLocator(client)

	schedulers := make([]*tasks.Scheduler, 0, len(result.Instances))
	for _, instance := range result.Instances {
		batch := tasks.NewBatchLogger(instance.ID)

		manager := feed.NewManager(instance, feed.ManagerDeps{
			Fetcher: client,
			Parser:  parser,
			YouTube: youtube,
			Filter:  feed.NewPostFilter(instance.PostFilters),
			Store:   store,
			Batch:   batch,
		})

		schedulers = append(schedulers, tasks.NewScheduler(instance, tasks.SchedulerDeps{
			Manager:  manager,
			Notifier: notify.NewNotifier(instance, client),
			Store:    store,
			Batch:    batch,
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := tasks.NewSupervisor(schedulers...)
	supervisor.Start(ctx)

	handler := api.NewHandler(supervisor, store, appCfg.Version)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	slog.Info("RSS Relay started", "instances", len(schedulers))

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-serverErr:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	supervisor.Stop()
	slog.Info("RSS Relay shutdown complete")

	return nil
}
