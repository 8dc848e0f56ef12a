// Package main provides the sym job server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sym-studio/sym-go/internal/config"
	"github.com/sym-studio/sym-go/internal/db"
	"github.com/sym-studio/sym-go/internal/metrics"
	"github.com/sym-studio/sym-go/internal/provider"
	"github.com/sym-studio/sym-go/internal/queue"
	"github.com/sym-studio/sym-go/internal/realtime"
	"github.com/sym-studio/sym-go/internal/server"
	"github.com/sym-studio/sym-go/internal/service"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all job records on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		logger.Error("invalid port", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	logger.Info("starting sym-server", "port", port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, dbClient := openStore(ctx, cfg, logger)
	if dbClient != nil {
		defer func() {
			if err := dbClient.Close(context.Background()); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()
		if *wipeDB || os.Getenv("SYM_WIPE_DB") == "true" {
			wipeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := dbClient.WipeData(wipeCtx)
			cancel()
			if err != nil {
				logger.Error("failed to wipe database", "error", err)
				os.Exit(1)
			}
			logger.Warn("wiped all job records")
		}
	}

	registry := buildRegistry(ctx, cfg, logger)

	var q *queue.Queue
	if cfg.MaxConcurrency > 0 {
		q = queue.NewBounded("ai", cfg.MaxConcurrency)
	} else {
		q = queue.New("ai")
	}

	hub := realtime.NewHub(logger)
	collector := metrics.NewCollector()
	svc := service.NewGenerateService(store, q, registry, hub, collector, logger)

	srv := server.New(port, server.NewHandler(svc, hub, collector, logger), logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	// Let in-flight jobs finish before closing the database.
	q.Wait()
	logger.Info("server stopped")
}

// openStore connects to SurrealDB, or falls back to the in-memory store
// when SYM_MEMORY_STORE is set or the database is unreachable. The second
// return value is non-nil only for the SurrealDB-backed store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (service.RecordStore, *db.Client) {
	if os.Getenv("SYM_MEMORY_STORE") == "true" {
		logger.Info("using in-memory job store")
		return service.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		logger.Warn("database unavailable, using in-memory job store", "error", err)
		return service.NewMemoryStore(), nil
	}
	if err := client.InitSchema(connectCtx); err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	logger.Info("connected to SurrealDB", "url", cfg.SurrealDBURL)
	return client, client
}

// buildRegistry registers every provider whose credentials are configured.
func buildRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger) *provider.Registry {
	registry := provider.NewRegistry()

	if cfg.GeminiAPIKey != "" {
		p, err := provider.NewGemini(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Error("failed to initialize Gemini provider", "error", err)
			os.Exit(1)
		}
		registry.Register(p)
		logger.Info("registered provider", "provider", p.Name())
	}

	if cfg.ReplicateToken != "" {
		opts := []provider.ReplicateOption{provider.WithPollInterval(cfg.PollInterval)}
		if cfg.PollTimeout > 0 {
			opts = append(opts, provider.WithMaxWait(cfg.PollTimeout))
		}
		p, err := provider.NewReplicate(cfg.ReplicateToken, opts...)
		if err != nil {
			logger.Error("failed to initialize Replicate provider", "error", err)
			os.Exit(1)
		}
		registry.Register(p)
		logger.Info("registered provider", "provider", p.Name())
	}

	if cfg.BedrockRegion != "" {
		p, err := provider.NewBedrock(ctx, cfg.BedrockRegion)
		if err != nil {
			logger.Error("failed to initialize Bedrock provider", "error", err)
			os.Exit(1)
		}
		registry.Register(p)
		logger.Info("registered provider", "provider", p.Name())
	}

	if len(registry.Names()) == 0 {
		logger.Warn("no providers configured, generation requests will fail")
	}

	return registry
}
