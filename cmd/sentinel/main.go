package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poyrazK/dnsSentinel/internal/adapters/api"
	"github.com/poyrazK/dnsSentinel/internal/adapters/cache"
	"github.com/poyrazK/dnsSentinel/internal/adapters/provider"
	"github.com/poyrazK/dnsSentinel/internal/adapters/repository"
	"github.com/poyrazK/dnsSentinel/internal/config"
	"github.com/poyrazK/dnsSentinel/internal/core/ports"
	"github.com/poyrazK/dnsSentinel/internal/core/services"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := repository.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	repo := repository.NewPostgresRepository(db)

	dnsProvider, err := buildProvider(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize DNS provider: %v", err)
	}

	var snapCache ports.SnapshotCache
	if cfg.Redis.Enabled {
		snapCache = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	} else {
		snapCache = cache.NewMemoryCache()
	}

	reconciler := services.NewReconciler(repo, dnsProvider, logger)
	reconciler.Cache = snapCache
	reconciler.WorkerCount = cfg.Audit.Workers
	reconciler.ProviderTimeout = cfg.Audit.ProviderTimeout
	reconciler.RetryAttempts = cfg.Audit.RetryAttempts
	reconciler.SnapshotMaxAge = cfg.Audit.SnapshotMaxAge

	approvals := services.NewApprovalQueue(repo, dnsProvider, logger)

	portfolio := services.NewPortfolio(repo, dnsProvider, logger)
	portfolio.Cache = snapCache
	portfolio.CacheTTL = cfg.Audit.SnapshotMaxAge

	apiHandler := api.NewAPIHandler(reconciler, approvals, portfolio, repo, logger)
	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("sentinel API listening", "addr", srv.Addr, "provider", cfg.Provider.Kind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown did not complete cleanly", "error", err)
	}
}

func buildProvider(cfg *config.Config, logger *slog.Logger) (ports.DNSProvider, error) {
	switch cfg.Provider.Kind {
	case "cloudflare":
		return provider.NewCloudflareProvider(cfg.Provider.CloudflareAPIToken, logger)
	case "route53":
		return provider.NewRoute53Provider(context.Background(), cfg.Provider.AWSRegion,
			cfg.Provider.AWSAccessKeyID, cfg.Provider.AWSSecretAccessKey, logger)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}
