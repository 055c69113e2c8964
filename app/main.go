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

	"github.com/oklog/run"

	"github.com/lysyi3m/rss-digest/app/api"
	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/config"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/logger"
	"github.com/lysyi3m/rss-digest/app/render"
	"github.com/lysyi3m/rss-digest/app/tasks"
)

func main() {
	os.Exit(runMain(os.Args[1:]))
}

// runMain returns the process exit code so deferred cleanup always runs
// before the process exits.
func runMain(args []string) int {
	appCfg, err := cfg.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if appCfg == nil {
		return 0
	}

	_, logCloser := logger.Setup(logger.Options{
		Debug:      appCfg.Debug,
		Format:     appCfg.LogFormat,
		File:       appCfg.LogFile,
		MaxSizeMB:  appCfg.LogMaxSize,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	defer logCloser.Close()

	if err := cfg.ApplyTimezone(appCfg.Timezone); err != nil {
		slog.Error("Invalid timezone", "timezone", appCfg.Timezone, "error", err)
		return 1
	}

	slog.Info("Starting RSS Digest",
		"version", appCfg.Version,
		"command", appCfg.Command,
		"config", appCfg.ConfigFile,
		"db", appCfg.DBPath,
		"output", appCfg.OutputDir)

	newsletter, err := config.Load(appCfg.ConfigFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}
	slog.Info("Configuration loaded",
		"title", newsletter.Newsletter.Title,
		"feeds", len(newsletter.Feeds),
		"enabled", len(newsletter.EnabledFeeds()))

	ledger, err := database.Open(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open ledger", "error", err)
		return 1
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			slog.Error("Failed to close ledger", "error", err)
		}
	}()

	renderer, err := render.NewRenderer(appCfg.OutputDir)
	if err != nil {
		slog.Error("Failed to prepare renderer", "error", err)
		return 1
	}

	fetcher := feed.NewFetcher(&http.Client{}, feed.NewParser(), feed.NewContentExtractor(), appCfg.UserAgent)
	pool := tasks.NewFetchPool(fetcher, newsletter.Settings.Concurrency, newsletter.Settings.GetRequestDelay())
	digestTask := tasks.NewDigestTask(newsletter, ledger, pool, renderer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch appCfg.Command {
	case cfg.CommandServe:
		return serve(ctx, appCfg, newsletter, ledger, digestTask)
	default:
		return runOnce(ctx, digestTask)
	}
}

func runOnce(ctx context.Context, digestTask *tasks.DigestTask) int {
	report, err := digestTask.Execute(ctx)
	if err != nil {
		slog.Error("Digest run failed", "error", err)
		return 1
	}

	slog.Info("Digest written",
		"run_id", report.RunID,
		"published", report.Stats.PublishedCount,
		"failed_sources", report.Stats.FailedSources)
	return 0
}

func serve(ctx context.Context, appCfg *cfg.Cfg, newsletter *config.Config, history database.History, digestTask *tasks.DigestTask) int {
	handler := api.NewHandler(history, newsletter, appCfg.OutputDir, appCfg.Version)
	httpServer := api.NewHTTPServer(appCfg.Port, api.NewServer(handler))

	var g run.Group

	g.Add(func() error {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		slog.Info("Endpoints available",
			"latest", fmt.Sprintf("http://localhost:%s/", appCfg.Port),
			"archive", fmt.Sprintf("http://localhost:%s/archive/", appCfg.Port),
			"feed", fmt.Sprintf("http://localhost:%s/feed.xml", appCfg.Port),
			"health", fmt.Sprintf("http://localhost:%s/health", appCfg.Port),
			"stats", fmt.Sprintf("http://localhost:%s/stats", appCfg.Port))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	})

	if appCfg.Interval > 0 {
		scheduler := tasks.NewScheduler(digestTask, appCfg.Interval)
		done := make(chan struct{})

		g.Add(func() error {
			slog.Info("Starting digest scheduler", "interval", appCfg.Interval)
			scheduler.Start()
			<-done
			return nil
		}, func(error) {
			scheduler.Stop()
			close(done)
		})
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()

	var signalErr run.SignalError
	if err != nil && !errors.As(err, &signalErr) && !errors.Is(err, context.Canceled) {
		slog.Error("Server stopped with error", "error", err)
		return 1
	}

	slog.Info("RSS Digest server shutdown complete")
	return 0
}
