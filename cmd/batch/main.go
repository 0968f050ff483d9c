package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/audit"
	"github.com/raaihank/deidentifier/internal/batch"
	"github.com/raaihank/deidentifier/internal/cache"
	"github.com/raaihank/deidentifier/internal/config"
	"github.com/raaihank/deidentifier/internal/engine"
	"github.com/raaihank/deidentifier/internal/enrichment"
	"github.com/raaihank/deidentifier/internal/httpx"
	"github.com/raaihank/deidentifier/internal/logger"
	"github.com/raaihank/deidentifier/internal/validator"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Configuration file path")
		inputFile   = flag.String("input", "", "Input file (CSV, Parquet, or JSONL)")
		outputFile  = flag.String("output", "", "Output JSONL file (default: <input>.deid.jsonl)")
		mode        = flag.String("mode", string(batch.ModeAnonymize), "anonymize or pseudonymize")
		operator    = flag.String("operator", "", "Anonymization operator (default from config)")
		method      = flag.String("method", "", "Pseudonymization method (default from config)")
		params      = flag.String("params", "", "Operator or method parameters as a JSON object")
		language    = flag.String("language", "", "Text language (default from config)")
		minScore    = flag.Float64("min-score", -1, "Minimum detection score (default from config)")
		entityTypes = flag.String("entity-types", "", "Comma separated entity types (default from config)")
		batchSize   = flag.Int("batch-size", 0, "Records per batch (default from config)")
		showStats   = flag.Bool("stats", false, "Show audit and cache statistics and exit")
		clearCache  = flag.Bool("clear-cache", false, "Clear the enrichment cache and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats && !*clearCache {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input patients.csv --output patients.jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input notes.parquet --mode pseudonymize --method counter\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	switch {
	case *showStats:
		if err := showStatistics(ctx, cfg, log); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
		return
	case *clearCache:
		if err := clearEnrichmentCache(ctx, cfg, log); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
		return
	}

	opts := batch.Options{
		Mode:     batch.Mode(*mode),
		Operator: orDefault(*operator, cfg.Defaults.AnonymizationOperator),
		Method:   orDefault(*method, cfg.Defaults.PseudonymizationMethod),
		Language: orDefault(*language, cfg.Defaults.Language),
		MinScore: cfg.Defaults.MinScore,
	}
	if *minScore >= 0 {
		opts.MinScore = *minScore
	}
	if *params != "" {
		if err := json.Unmarshal([]byte(*params), &opts.Params); err != nil {
			log.Fatal("Invalid --params JSON", zap.Error(err))
		}
	}
	if *batchSize > 0 {
		cfg.Batch.BatchSize = *batchSize
	}

	if err := processFile(ctx, cfg, opts, *entityTypes, *inputFile, *outputFile, log); err != nil {
		log.Fatal("Batch processing failed", zap.Error(err))
	}
	log.Info("Batch processing completed successfully")
}

func processFile(ctx context.Context, cfg *config.Config, opts batch.Options, entityTypes, inputFile, outputFile string, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	client := httpx.NewClient(httpx.Options{
		MaxAttempts:        cfg.Enrichment.Retry.MaxAttempts,
		InitialInterval:    cfg.Enrichment.Retry.InitialInterval,
		MaxInterval:        cfg.Enrichment.Retry.MaxInterval,
		BreakerEnabled:     cfg.Enrichment.Breaker.Enabled,
		BreakerTimeout:     cfg.Enrichment.Breaker.Timeout,
		BreakerMaxFailures: cfg.Enrichment.Breaker.MaxFailures,
	}, log)

	registry := engine.NewRegistry(engine.NewFactory(cfg.Engine, client, log), log)

	requested := cfg.Defaults.EntityTypes
	if entityTypes != "" {
		requested = strings.Split(entityTypes, ",")
	}
	validated, err := validator.New(registry, log).Validate(ctx, opts.Language, requested)
	if err != nil {
		return err
	}
	opts.EntityTypes = validated

	var manager *enrichment.Manager
	if opts.Mode == batch.ModePseudonymize && cfg.Enrichment.Enabled {
		var enrichmentCache enrichment.Cache
		if cfg.Enrichment.Cache.Enabled {
			redisCache, err := newCache(cfg, log)
			if err != nil {
				log.Warn("Enrichment cache unavailable", zap.Error(err))
			} else {
				defer redisCache.Close()
				enrichmentCache = redisCache
			}
		}
		manager = enrichment.NewManager(cfg.Enrichment, client, enrichmentCache, log)
	}

	if outputFile == "" {
		outputFile = strings.TrimSuffix(inputFile, filepath.Ext(inputFile)) + ".deid.jsonl"
	}
	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	pipeline := batch.NewPipeline(registry, manager, cfg.Batch, log)
	result, err := pipeline.ProcessFile(ctx, inputFile, out, opts)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	log.Info("Dataset processing completed",
		zap.String("file", inputFile),
		zap.String("output", outputFile),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("skipped", result.Skipped),
		zap.Any("entity_stats", result.EntityStats),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("analysis_time", result.AnalysisTime),
		zap.Float64("records_per_second", float64(result.TotalRecords)/result.Duration.Seconds()))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}
	return nil
}

// showStatistics prints audit totals for the last day and cache statistics
func showStatistics(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			return err
		}
		defer store.Close()

		totals, err := store.TotalsSince(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			return err
		}
		runs, err := store.Recent(ctx, 10)
		if err != nil {
			return err
		}

		fmt.Printf("\n=== Entities de-identified in the last 24h ===\n")
		for _, t := range totals {
			fmt.Printf("%-20s %d\n", t.EntityType, t.Total)
		}
		fmt.Printf("\n=== Recent runs ===\n")
		for _, r := range runs {
			fmt.Printf("%s  %-12s %-10s %8.1f ms  %v\n",
				r.CreatedAt.Format(time.RFC3339), r.Operation, r.Scope, r.DurationMS, map[string]int(r.EntityCounts))
		}
	}

	if cfg.Enrichment.Cache.Enabled {
		redisCache, err := newCache(cfg, log)
		if err != nil {
			return err
		}
		defer redisCache.Close()

		stats, err := redisCache.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n=== Enrichment Cache Statistics ===\n")
		fmt.Printf("Total Keys:         %d\n", stats.TotalKeys)
		fmt.Printf("Memory Usage:       %.2f MB\n", float64(stats.MemoryUsage)/1024/1024)
	}
	return nil
}

func clearEnrichmentCache(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Enrichment.Cache.Enabled {
		return fmt.Errorf("enrichment cache is not enabled")
	}
	redisCache, err := newCache(cfg, log)
	if err != nil {
		return err
	}
	defer redisCache.Close()
	return redisCache.Clear(ctx)
}

func newCache(cfg *config.Config, log *logger.Logger) (*cache.EnrichmentCache, error) {
	return cache.NewEnrichmentCache(cache.Config{
		RedisURL:   cfg.Enrichment.Cache.RedisURL,
		DefaultTTL: cfg.Enrichment.Cache.TTL,
		KeyPrefix:  cfg.Enrichment.Cache.KeyPrefix,
	}, log)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
