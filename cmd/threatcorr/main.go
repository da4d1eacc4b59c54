package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threatcorr/config"
	"threatcorr/internal/catalog"
	"threatcorr/internal/enrich"
	"threatcorr/internal/ingest"
	inputredis "threatcorr/internal/input/redis"
	"threatcorr/internal/kvstore"
	"threatcorr/internal/logger"
	"threatcorr/internal/output/correlclickhouse"
	"threatcorr/internal/output/correlhttp"
	"threatcorr/internal/output/correljson"
	"threatcorr/internal/service"
	"threatcorr/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("threatcorr.yml"); err == nil {
		return "threatcorr.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "threatcorr.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "threatcorr.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.ThreatCorr.Input.Redis.Addr == "" {
		cfg.ThreatCorr.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.ThreatCorr.Input.Redis.Queue == "" {
		cfg.ThreatCorr.Input.Redis.Queue = "security_events"
	}
	if cfg.ThreatCorr.Input.Redis.BlockTimeout == 0 {
		cfg.ThreatCorr.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.ThreatCorr.Pipeline.Workers <= 0 {
		cfg.ThreatCorr.Pipeline.Workers = 4
	}
	if cfg.ThreatCorr.Pipeline.BatchSize <= 0 {
		cfg.ThreatCorr.Pipeline.BatchSize = 100
	}
	if cfg.ThreatCorr.Pipeline.FlushInterval <= 0 {
		cfg.ThreatCorr.Pipeline.FlushInterval = 2 * time.Second
	}

	if cfg.ThreatCorr.Storage.Mode == "" {
		cfg.ThreatCorr.Storage.Mode = "memory"
	}
	if cfg.ThreatCorr.Storage.Redis.Addr == "" {
		cfg.ThreatCorr.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.ThreatCorr.Storage.Redis.KeyPrefix == "" {
		cfg.ThreatCorr.Storage.Redis.KeyPrefix = "threatcorr"
	}

	if cfg.ThreatCorr.Output.Mode == "" {
		cfg.ThreatCorr.Output.Mode = "file"
	}
	if cfg.ThreatCorr.Output.File.Path == "" {
		cfg.ThreatCorr.Output.File.Path = "output/correlations.jsonl"
	}
	if cfg.ThreatCorr.Output.ClickHouse.Database == "" {
		cfg.ThreatCorr.Output.ClickHouse.Database = "threatcorr"
	}
	if cfg.ThreatCorr.Output.ClickHouse.Table == "" {
		cfg.ThreatCorr.Output.ClickHouse.Table = "correlations"
	}

	if cfg.ThreatCorr.Metrics.Listen == "" {
		cfg.ThreatCorr.Metrics.Listen = "127.0.0.1:9105"
	}

	if cfg.ThreatCorr.Logging.Level == "" {
		cfg.ThreatCorr.Logging.Level = "info"
	}
}

func buildStorage(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.ThreatCorr.Storage.Mode {
	case "redis":
		return kvstore.NewRedis(kvstore.RedisConfig{
			Addr:      cfg.ThreatCorr.Storage.Redis.Addr,
			Password:  cfg.ThreatCorr.Storage.Redis.Password,
			DB:        cfg.ThreatCorr.Storage.Redis.DB,
			KeyPrefix: cfg.ThreatCorr.Storage.Redis.KeyPrefix,
		})
	default:
		return kvstore.NewMemory(), nil
	}
}

func buildService(cfg *config.Config) (*service.Service, error) {
	store, err := buildStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage backend: %w", err)
	}

	kinds := models.NewKindRegistry(cfg.ThreatCorr.EventKinds...)
	cat := catalog.New(kinds)

	patterns := catalog.Defaults()
	if strings.TrimSpace(cfg.ThreatCorr.Catalog.Path) != "" {
		patterns, err = catalog.LoadFile(cfg.ThreatCorr.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("load pattern catalog: %w", err)
		}
	}
	if err := cat.Load(patterns); err != nil {
		return nil, fmt.Errorf("install pattern catalog: %w", err)
	}
	logger.Infof("Pattern catalog installed: %d patterns", len(patterns))

	var enricher enrich.Engine
	if cfg.ThreatCorr.Enrichment.Enabled {
		if strings.TrimSpace(cfg.ThreatCorr.Enrichment.RulesPath) == "" {
			logger.Warnf("Enrichment enabled but rules_path is empty; enrichment disabled")
		} else {
			sigmaEngine, stats, err := enrich.NewSigmaEngine(cfg.ThreatCorr.Enrichment.RulesPath)
			if err != nil {
				return nil, fmt.Errorf("load sigma rules: %w", err)
			}
			enricher = sigmaEngine
			logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
				stats.Loaded, stats.SkippedComplex, stats.SkippedInvalid, stats.TotalFiles)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible Sigma rules loaded; enrichment is effectively disabled")
			}
		}
	}

	return service.New(store, cat, kinds, enricher, service.Config{
		EventCapacity:       cfg.ThreatCorr.Storage.EventCapacity,
		CorrelationCapacity: cfg.ThreatCorr.Storage.CorrelationCapacity,
	}), nil
}

func buildSink(cfg *config.Config) (ingest.CorrelationSink, error) {
	switch cfg.ThreatCorr.Output.Mode {
	case "file":
		w, err := correljson.NewWriter(cfg.ThreatCorr.Output.File.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: file (%s)", cfg.ThreatCorr.Output.File.Path)
		return w, nil
	case "http":
		w, err := correlhttp.NewWriter(correlhttp.Config{
			URL:     cfg.ThreatCorr.Output.HTTP.URL,
			Timeout: cfg.ThreatCorr.Output.HTTP.Timeout,
			Headers: cfg.ThreatCorr.Output.HTTP.Headers,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: http (%s)", cfg.ThreatCorr.Output.HTTP.URL)
		return w, nil
	case "clickhouse":
		w, err := correlclickhouse.NewWriter(correlclickhouse.Config{
			URL:      cfg.ThreatCorr.Output.ClickHouse.URL,
			Database: cfg.ThreatCorr.Output.ClickHouse.Database,
			Table:    cfg.ThreatCorr.Output.ClickHouse.Table,
			Username: cfg.ThreatCorr.Output.ClickHouse.Username,
			Password: cfg.ThreatCorr.Output.ClickHouse.Password,
			Timeout:  cfg.ThreatCorr.Output.ClickHouse.Timeout,
			Headers:  cfg.ThreatCorr.Output.ClickHouse.Headers,
		})
		if err != nil {
			return nil, err
		}
		logger.Infof("Output mode: clickhouse (%s/%s.%s)", cfg.ThreatCorr.Output.ClickHouse.URL,
			cfg.ThreatCorr.Output.ClickHouse.Database, cfg.ThreatCorr.Output.ClickHouse.Table)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown output mode: %s", cfg.ThreatCorr.Output.Mode)
	}
}

func runServe(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.ThreatCorr.Logging.Enabled, cfg.ThreatCorr.Logging.Level, cfg.ThreatCorr.Logging.File, cfg.ThreatCorr.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("ThreatCorr starting")
	logger.Infof("Config loaded from: %s", configPath)

	svc, err := buildService(cfg)
	if err != nil {
		logger.Errorf("Failed to build correlation service: %v", err)
		log.Fatalf("Failed to build correlation service: %v", err)
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.ThreatCorr.Input.Redis.Addr,
		Password:     cfg.ThreatCorr.Input.Redis.Password,
		DB:           cfg.ThreatCorr.Input.Redis.DB,
		Queue:        cfg.ThreatCorr.Input.Redis.Queue,
		BlockTimeout: cfg.ThreatCorr.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	sink, err := buildSink(cfg)
	if err != nil {
		logger.Errorf("Failed to create correlation sink: %v", err)
		log.Fatalf("Failed to create correlation sink: %v", err)
	}

	if cfg.ThreatCorr.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Infof("Metrics listening on %s", cfg.ThreatCorr.Metrics.Listen)
			if err := http.ListenAndServe(cfg.ThreatCorr.Metrics.Listen, mux); err != nil {
				logger.Errorf("Metrics listener error: %v", err)
			}
		}()
	}

	pipe := ingest.NewPipeline(
		consumer,
		svc,
		sink,
		cfg.ThreatCorr.Pipeline.Workers,
		cfg.ThreatCorr.Pipeline.BatchSize,
		cfg.ThreatCorr.Pipeline.FlushInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("ThreatCorr stopped")
}

func runQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	tenant := fs.String("tenant", "", "Tenant id to query")
	window := fs.Duration("window", 24*time.Hour, "Look-back window")
	severity := fs.String("severity", "", "Optional severity filter (low|medium|high|critical)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*tenant) == "" {
		fmt.Fprintln(os.Stderr, "query requires -tenant")
		return 2
	}

	cfg, err := config.LoadConfig(findConfigFile(*configArg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	applyDefaults(cfg)
	if cfg.ThreatCorr.Storage.Mode != "redis" {
		fmt.Fprintln(os.Stderr, "warning: memory storage holds no data outside the serve process")
	}

	svc, err := buildService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build correlation service: %v\n", err)
		return 1
	}

	res, err := svc.Query(context.Background(), *tenant, *window, models.Severity(*severity))
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		return 1
	}
	return 0
}

func runTransition(args []string) int {
	fs := flag.NewFlagSet("transition", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	tenant := fs.String("tenant", "", "Tenant id")
	id := fs.String("id", "", "Correlation id")
	status := fs.String("status", "", "New status (acknowledged|closed)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *tenant == "" || *id == "" || *status == "" {
		fmt.Fprintln(os.Stderr, "transition requires -tenant, -id and -status")
		return 2
	}

	cfg, err := config.LoadConfig(findConfigFile(*configArg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	applyDefaults(cfg)

	svc, err := buildService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build correlation service: %v\n", err)
		return 1
	}

	c, err := svc.Transition(context.Background(), *tenant, *id, models.Status(*status))
	if err != nil {
		fmt.Fprintf(os.Stderr, "transition failed: %v\n", err)
		return 1
	}
	fmt.Printf("correlation %s is now %s\n", c.ID, c.Status)
	return 0
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "query":
			os.Exit(runQuery(os.Args[2:]))
		case "transition":
			os.Exit(runTransition(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runServe(os.Args[1:])
			return
		}
	}

	runServe(nil)
}
