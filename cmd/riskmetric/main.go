// RiskMetric - Batch fraud scoring over synthetic banking transactions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/riskmetric/internal/api"
	"github.com/opensource-finance/riskmetric/internal/bus"
	"github.com/opensource-finance/riskmetric/internal/cache"
	"github.com/opensource-finance/riskmetric/internal/config"
	"github.com/opensource-finance/riskmetric/internal/domain"
	"github.com/opensource-finance/riskmetric/internal/ingest"
	"github.com/opensource-finance/riskmetric/internal/pipeline"
	"github.com/opensource-finance/riskmetric/internal/repository"
	"github.com/opensource-finance/riskmetric/internal/rules"
	"github.com/opensource-finance/riskmetric/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to TOML config file")
		transactions = flag.String("transactions", "", "CSV file of transactions to ingest")
		profiles     = flag.String("profiles", "", "CSV file of user profiles to ingest")
		runOnce      = flag.Bool("run", false, "execute one batch scoring run and exit")
		fullRefresh  = flag.Bool("full-refresh", false, "rebuild detector signal tables from scratch")
		serve        = flag.Bool("serve", false, "start the report API and run worker")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting riskmetric",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Ingest staging data if requested
	if *transactions != "" {
		n, err := ingest.LoadTransactions(ctx, repo, *transactions)
		if err != nil {
			slog.Error("transaction ingest failed", "path", *transactions, "error", err)
			os.Exit(1)
		}
		slog.Info("transactions ingested", "path", *transactions, "rows", n)
	}
	if *profiles != "" {
		n, err := ingest.LoadUserProfiles(ctx, repo, *profiles)
		if err != nil {
			slog.Error("profile ingest failed", "path", *profiles, "error", err)
			os.Exit(1)
		}
		slog.Info("user profiles ingested", "path", *profiles, "rows", n)
	}

	if !*runOnce && !*serve {
		if *transactions == "" && *profiles == "" {
			flag.Usage()
			os.Exit(2)
		}
		return
	}

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize triage rule engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize triage engine", "error", err)
		os.Exit(1)
	}
	if err := engine.LoadRules(cfg.TriageRules); err != nil {
		slog.Error("failed to load triage rules", "error", err)
		os.Exit(1)
	}
	slog.Info("triage engine initialized", "rules_count", engine.RuleCount())

	pipe := pipeline.New(repo, busImpl, engine, cfg)

	// One-shot batch run
	if *runOnce {
		summary, err := pipe.Run(ctx, *fullRefresh)
		if err != nil {
			slog.Error("batch run failed", "error", err)
			os.Exit(1)
		}
		slog.Info("batch run finished",
			"run_id", summary.RunID,
			"scored_records", summary.ScoredRecords,
			"alerts", summary.Alerts,
		)
		if !*serve {
			return
		}
	}

	// Initialize Cache for report responses
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Start run worker
	runWorker := worker.NewWorker(busImpl, pipe)
	if err := runWorker.Start(); err != nil {
		slog.Error("failed to start run worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	cacheTTL := time.Duration(cfg.Cache.LocalTTL) * time.Second
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, cacheTTL, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("riskmetric is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := runWorker.Stop(); err != nil {
		slog.Error("failed to stop run worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("riskmetric shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              RISKMETRIC                   ║")
	fmt.Println("  ║       Batch Fraud Scoring Engine          ║")
	fmt.Println("  ║    Every transaction, every detector.     ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /reports/risk-scores           - Scored transactions")
	fmt.Println("    GET  /reports/fraud-attribution     - Detected fraud with attribution")
	fmt.Println("    GET  /reports/user-risk-profiles    - Per-user risk rollup")
	fmt.Println("    GET  /reports/model-evaluation      - Confusion matrices and metrics")
	fmt.Println("    GET  /reports/threshold-calibration - Threshold sweep results")
	fmt.Println("    POST /runs                          - Request a batch run")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println()
}
