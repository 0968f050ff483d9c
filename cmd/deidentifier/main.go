package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/api"
	"github.com/raaihank/deidentifier/internal/audit"
	"github.com/raaihank/deidentifier/internal/cache"
	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/engine"
	"github.com/raaihank/deidentifier/internal/enrichment"
	"github.com/raaihank/deidentifier/internal/httpx"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/metrics"
	"github.com/raaihank/deidentifier/internal/security"
	"github.com/raaihank/deidentifier/internal/service"
	"github.com/raaihank/deidentifier/internal/validator"
	"github.com/raaihank/deidentifier/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the health endpoint at this base URL and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("deidentifier %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	source := config.NewSource(*configPath)
	cfg, err := source.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting deidentifier",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", source.ConfigFile()),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := httpx.NewClient(httpx.Options{
		MaxAttempts:        cfg.Enrichment.Retry.MaxAttempts,
		InitialInterval:    cfg.Enrichment.Retry.InitialInterval,
		MaxInterval:        cfg.Enrichment.Retry.MaxInterval,
		BreakerEnabled:     cfg.Enrichment.Breaker.Enabled,
		BreakerTimeout:     cfg.Enrichment.Breaker.Timeout,
		BreakerMaxFailures: cfg.Enrichment.Breaker.MaxFailures,
	}, log)

	var enrichmentCache enrichment.Cache
	if cfg.Enrichment.Cache.Enabled {
		redisCache, err := cache.NewEnrichmentCache(cache.Config{
			RedisURL:   cfg.Enrichment.Cache.RedisURL,
			DefaultTTL: cfg.Enrichment.Cache.TTL,
			KeyPrefix:  cfg.Enrichment.Cache.KeyPrefix,
		}, log)
		if err != nil {
			// enrichment keeps working uncached
			log.Warn("Enrichment cache unavailable", zap.Error(err))
		} else {
			defer redisCache.Close()
			enrichmentCache = redisCache
		}
	}
	manager := enrichment.NewManager(cfg.Enrichment, client, enrichmentCache, log)

	registry := engine.NewRegistry(engine.NewFactory(cfg.Engine, client, log), log)
	if _, err := registry.Analyzer(); err != nil {
		log.Warn("Detection engine not ready, will retry on first request", zap.Error(err))
	}
	entityValidator := validator.New(registry, log)
	structured := engine.NewStructuredEngine(registry, log)

	var observers service.Observers
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics, nil)
		observers = append(observers, collector)
	}

	var hub *websocket.Hub
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
		observers = append(observers, hub)
	}

	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			log.Fatal("Failed to open audit store", zap.Error(err))
		}
		defer store.Close()
		observers = append(observers, store)
	}

	limiter := security.NewRateLimiter(cfg.RateLimit)
	limiter.StartCleanupRoutine(ctx)

	defaults := service.DefaultsFromConfig(cfg.Defaults)
	services := api.Services{
		Analyze:                    service.NewAnalyzeService(registry, entityValidator, defaults, observers, log),
		TextAnonymization:          service.NewTextAnonymizationService(registry, entityValidator, defaults, observers, log),
		StructuredAnonymization:    service.NewStructuredAnonymizationService(structured, entityValidator, defaults, observers, log),
		TextPseudonymization:       service.NewTextPseudonymizationService(registry, entityValidator, defaults, manager, observers, log),
		StructuredPseudonymization: service.NewStructuredPseudonymizationService(structured, entityValidator, defaults, manager, observers, log),
	}

	server := api.New(cfg, services, api.Dependencies{
		Entities: entityValidator,
		Hub:      hub,
		Metrics:  collector,
		Limiter:  limiter,
	}, log)

	if source.ConfigFile() != "" {
		source.Watch(func(newConfig *config.Config) {
			manager.Update(newConfig.Enrichment)
			log.Info("Enrichment configuration reloaded",
				zap.Bool("enabled", newConfig.Enrichment.Enabled),
				zap.Int("entity_types", len(newConfig.Enrichment.Configurations)))
		}, func(err error) {
			log.Warn("Ignoring invalid configuration change", zap.Error(err))
		})
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		log.Info("Server shutdown complete")
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}
	return logger.New(loggerConfig)
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(baseURL string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
