package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compliance-extraction-engine/internal/config"
	"compliance-extraction-engine/internal/domain/ports/adapter"
	ai "compliance-extraction-engine/internal/infra/adapters/ai"
	"compliance-extraction-engine/internal/infra/api"
	pg "compliance-extraction-engine/internal/infra/db/postgres"
	"compliance-extraction-engine/internal/infra/logging"
	"compliance-extraction-engine/internal/infra/metrics"
	red "compliance-extraction-engine/internal/infra/redis"
	"compliance-extraction-engine/internal/infra/regulation"
	"compliance-extraction-engine/internal/infra/schema"
	"compliance-extraction-engine/internal/infra/worker"
	"compliance-extraction-engine/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop extractor fallback, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	feed := red.NewProgressFeed(redisClient, logger)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	docRepo := pg.NewDocumentRepo(pool)
	resultRepo := pg.NewResultRepo(pool)
	mappingRepo := pg.NewMappingRepo(pool)
	progressRepo := pg.NewProgressRepo(pool)

	recorder := usecase.NewProgressRecorder(progressRepo, feed, logger)

	// ---- Regulation table ----
	table, err := regulation.Load(cfg.Engine.RegulationTable)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Engine.RegulationTable).Msg("regulation table")
	}
	logger.Info().Str("version", table.Version).Int("articles", len(table.Articles)).
		Msg("regulation table loaded")

	// ---- Extractor (Gemini -> OpenAI -> noop in dev) ----
	var extractor adapter.StructuredExtractor
	switch {
	case cfg.AI.GeminiKey != "":
		extractor, err = ai.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.Model)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		logger.Info().Str("model", cfg.AI.Model).Msg("extractor: gemini")
	case cfg.AI.OpenAIKey != "":
		extractor, err = ai.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.Model)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.AI.Model).Str("base", cfg.AI.OpenAIBaseURL).Msg("extractor: openai")
	case cfg.Runtime.Dev:
		extractor = ai.NewNoopExtractor()
		logger.Warn().Msg("extractor: noop (dev mode, no provider key configured)")
	default:
		logger.Fatal().Msg("no inference provider configured: set ai.gemini_key or ai.openai_key")
	}
	extractor = ai.NewLimitedExtractor(extractor, cfg.AI.ConcurrentLimit)

	// ---- Pipeline ----
	validator, err := schema.NewValidator()
	if err != nil {
		logger.Fatal().Err(err).Msg("output schema")
	}
	retry := usecase.RetryPolicy{
		MaxAttempts: cfg.Engine.CallMaxAttempts,
		BaseDelay:   cfg.Engine.CallBackoffBase,
		Factor:      4,
	}
	executor := worker.NewExecutor(
		extractor, validator, retry, usecase.RealClock(),
		cfg.AI.Model, cfg.Engine.CallTimeout, cfg.Engine.JobTokenCeiling, logger,
	)
	policy := usecase.StrategyPolicy{
		SinglePassMaxPages: cfg.Engine.SinglePassMaxPages,
		ParallelMinPages:   cfg.Engine.ParallelMinPages,
		WindowPages:        cfg.Engine.WindowPages,
	}
	workers := worker.NewPool(cfg.Engine.Workers, logger)
	runner := worker.NewRunner(
		jobRepo, docRepo, resultRepo, mappingRepo, tm, recorder,
		policy, usecase.NewMappingEngine(table), executor, workers,
		worker.RunnerConfig{
			PollInterval:  cfg.Engine.PollInterval,
			WallClock:     cfg.Engine.JobWallClock,
			MaxJobRetries: cfg.Engine.JobMaxRetries,
		},
		logger,
	)

	workers.Start(ctx)
	if err := runner.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("recovery scan")
	}
	runner.Start(ctx)

	// ---- Use cases and HTTP ----
	submitUC := usecase.NewSubmissionUseCase(jobRepo, docRepo, recorder, locker, runner, cfg.Redis.LockTTL, logger)
	progressUC := usecase.NewProgressUseCase(jobRepo, progressRepo, resultRepo, mappingRepo, feed)

	server := api.NewServer(cfg.HTTP.Port, submitUC, progressUC, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	workers.Stop()
}
