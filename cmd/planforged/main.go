package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	apiPkg "github.com/planforge-io/planforge/internal/api"
	"github.com/planforge-io/planforge/internal/app"
	"github.com/planforge-io/planforge/internal/config"
	"github.com/planforge-io/planforge/internal/notify"
	"github.com/planforge-io/planforge/internal/retention"
	"github.com/planforge-io/planforge/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	// Load config (2 modes: file, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("planforged starting", "data_dir", cfg.DataDir)

	// 1. Open the store
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(cfg.DataDir, "planforge.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// 2. Notifications
	var notifier notify.Notifier
	if cfg.Notifications.Slack != nil {
		notifier = notify.NewSlack(cfg.Notifications.Slack.Token, cfg.Notifications.Slack.Channel,
			logger.With("component", "notify"))
		logger.Info("slack notifications enabled", "channel", cfg.Notifications.Slack.Channel)
	}

	// 3. Orchestrator: persisted settings win over the config file
	svc := app.New(st, notifier, logger.With("component", "app"))
	if err := svc.LoadSettings(); err != nil {
		logger.Error("failed to load persisted settings", "error", err)
		os.Exit(1)
	}
	if cfg.Jira != nil && !svc.JiraConfigured() {
		svc.SetJiraClient(*cfg.Jira)
		logger.Info("jira client from config file", "base_url", cfg.Jira.BaseURL)
	}
	if cfg.LLM != nil && !svc.CheckLLM().Configured {
		if err := svc.ConfigureLLM(*cfg.LLM); err != nil {
			logger.Error("invalid llm config", "error", err)
			os.Exit(1)
		}
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. History retention
	pruner := retention.New(st, cfg.History.Keep, logger.With("component", "retention"))
	if err := pruner.Schedule(cfg.History.PruneSchedule); err != nil {
		logger.Error("failed to schedule history pruning", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "retention", func() { pruner.Start(ctx) })

	// 5. Start API server
	apiSrv := apiPkg.NewServer(svc, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
	}, logger.With("component", "api"))

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 6. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("planforged stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
