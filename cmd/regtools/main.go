// RegTools - AML indicator screening for life-insurance operations.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/regtools/internal/api"
	"github.com/opensource-finance/regtools/internal/bus"
	"github.com/opensource-finance/regtools/internal/cache"
	"github.com/opensource-finance/regtools/internal/config"
	"github.com/opensource-finance/regtools/internal/decision"
	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/history"
	"github.com/opensource-finance/regtools/internal/metrics"
	"github.com/opensource-finance/regtools/internal/pipeline"
	"github.com/opensource-finance/regtools/internal/repository"
	"github.com/opensource-finance/regtools/internal/rules"
	"github.com/opensource-finance/regtools/internal/thresholds"
	"github.com/opensource-finance/regtools/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("REGTOOLS_CONFIG"), "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting regtools",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
	)

	api.SetupTracing(cfg.Tracing)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	policy, err := thresholds.LoadOrDefault(cfg.Policy.Path)
	if err != nil {
		slog.Error("failed to load threshold policy", "path", cfg.Policy.Path, "error", err)
		os.Exit(1)
	}

	engine, err := rules.NewEngine(policy)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized",
		"catalogue", rules.CatalogueVersion,
		"policy", policy.Version,
		"indicators", len(engine.Catalogue()),
	)

	m := metrics.New()
	p := &pipeline.Pipeline{
		Engine:        engine,
		Processor:     decision.NewProcessor(),
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		History:       history.NewService(repo),
		Metrics:       m,
		EvaluationTTL: cfg.Cache.EvaluationTTL,
	}

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, p)
		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Worker.TenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	var opts []api.Option
	if asyncWorker != nil {
		opts = append(opts, api.WithWorker(asyncWorker))
	}
	srv := api.NewServer(cfg.Server, p, m, Version, opts...)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	slog.Info("regtools is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version, policy.Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("regtools shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version, policyVersion string) {
	fmt.Println()
	fmt.Println("  RegTools - AML indicator screening")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Policy:   %s\n", policyVersion)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate                  - Evaluate a client profile")
	fmt.Println("    POST /evaluate/batch            - Backtest a portfolio")
	fmt.Println("    POST /classify                  - Classify an occupation")
	fmt.Println("    POST /profiles                  - Queue a profile for evaluation")
	fmt.Println("    GET  /profiles                  - List recent profiles")
	fmt.Println("    GET  /profiles/{id}             - Get a profile")
	fmt.Println("    GET  /profiles/{id}/evaluations - List a profile's evaluations")
	fmt.Println("    GET  /evaluations/{id}          - Get evaluation by ID")
	fmt.Println("    GET  /clients/{id}/contracts    - Count a client's active contracts")
	fmt.Println("    GET  /catalogue                 - List indicators")
	fmt.Println("    GET  /thresholds                - Active threshold policy")
	if cfg.Server.PolicyAdminTenant != "" {
		fmt.Println("    PUT  /thresholds                - Replace the threshold policy (admin tenant)")
	}
	fmt.Println("    GET  /health, /ready, /metrics")
	fmt.Println()
}
