// Package main wires together the document parse service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/docparse/docparse/internal/analyze/openai"
	"github.com/docparse/docparse/internal/api"
	"github.com/docparse/docparse/internal/cache"
	"github.com/docparse/docparse/internal/clock/system"
	"github.com/docparse/docparse/internal/config"
	"github.com/docparse/docparse/internal/dispatcher"
	"github.com/docparse/docparse/internal/extract"
	"github.com/docparse/docparse/internal/extract/remote"
	"github.com/docparse/docparse/internal/hash/sha256"
	"github.com/docparse/docparse/internal/id/uuid"
	ledgermemory "github.com/docparse/docparse/internal/ledger/memory"
	ledgerpostgres "github.com/docparse/docparse/internal/ledger/postgres"
	"github.com/docparse/docparse/internal/logging"
	"github.com/docparse/docparse/internal/metrics"
	"github.com/docparse/docparse/internal/parser"
	queuememory "github.com/docparse/docparse/internal/queue/memory"
	storagelocal "github.com/docparse/docparse/internal/storage/local"
	"github.com/docparse/docparse/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	var jobStore parser.JobStore
	if cfg.DB.DSN != "" {
		pgStore, err := ledgerpostgres.NewJobStore(ctx, ledgerpostgres.JobStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres ledger init failed", zap.Error(err))
		}
		defer pgStore.Close()
		jobStore = pgStore
		logger.Info("using postgres job ledger", zap.String("table", cfg.DB.Table))
	} else {
		jobStore = ledgermemory.NewJobStore(clock)
		logger.Info("using in-memory job ledger")
	}

	contentStore, err := storagelocal.New(storagelocal.Config{
		BaseDir: cfg.Storage.BaseDir,
		Enabled: cfg.Storage.Enabled,
	}, clock)
	if err != nil {
		logger.Fatal("content store init failed", zap.Error(err))
	}

	var remoteExtractor parser.Extractor
	if cfg.Extractor.ServiceURL != "" {
		remoteExtractor, err = remote.NewClient(remote.Config{
			ServiceURL: cfg.Extractor.ServiceURL,
			Timeout:    cfg.ExtractionTimeout(),
		}, logger.Named("extractor"))
		if err != nil {
			logger.Fatal("extraction client init failed", zap.Error(err))
		}
	} else {
		logger.Warn("no extraction service configured, binary document formats disabled")
	}
	extractor := extract.NewRouter(remoteExtractor)

	analyzer, err := openai.NewClient(openai.Config{
		APIKey:        cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		Model:         cfg.OpenAI.Model,
		MaxTokens:     cfg.OpenAI.MaxTokens,
		Temperature:   float32(cfg.OpenAI.Temperature),
		Timeout:       cfg.AnalysisTimeout(),
		MaxInputChars: cfg.Parser.MaxInputChars,
	}, logger.Named("openai"))
	if err != nil {
		logger.Fatal("analysis client init failed", zap.Error(err))
	}

	queue := queuememory.NewQueue(cfg.Parser.QueueDepth)
	extractionCache := cache.New(cfg.CacheTTL(), cfg.Cache.MaxEntries, clock)
	hasher := sha256.New()
	idGen := uuid.New()

	workerCfg := worker.Config{
		AnalysisTimeout: cfg.AnalysisTimeout(),
		MinTextChars:    cfg.Parser.MinTextChars,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Parser.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			extractionCache,
			extractor,
			analyzer,
			hasher,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, jobStore, contentStore, idGen, clock, workers,
		dispatcher.Config{
			MinTextChars:  cfg.Parser.MinTextChars,
			MaxInputChars: cfg.Parser.MaxInputChars,
		}, logger.Named("dispatcher"))

	apiServer := api.NewServer(jobStore, dispatch, extractionCache, contentStore,
		extractor.SupportedFormats(), cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}
