package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/infra"
	"mediagen/internal/jobs"
	"mediagen/internal/providers"
	"mediagen/internal/providers/genai"
	"mediagen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema bootstrap failed")
	}
	jobRepo := repo.NewJobRepository(pool)
	artifactRepo := repo.NewArtifactRepository(pool)

	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage configuration invalid")
	}
	store := storage.NewStore(backend, artifactRepo, cfg.ImageContainer, cfg.VideoContainer, logger)

	videoProvider, err := buildVideoProvider(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: provider configuration invalid")
	}

	tracker := jobs.NewTracker(jobRepo, store, videoProvider, jobs.Config{
		PollInterval:    cfg.PollInterval,
		PollIntervalMax: cfg.PollIntervalMax,
		JobTimeout:      cfg.JobTimeout,
	}, logger)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() { tracker.SweepTimeouts(ctx) }); err != nil {
		logger.Fatal().Err(err).Msg("worker: cron schedule invalid")
	}
	sweeper.Start()
	defer sweeper.Stop()

	if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: tracker stopped")
	}
	logger.Info().Msg("worker stopped")
}

func buildBackend(cfg *infra.Config) (storage.Backend, error) {
	switch cfg.StorageMode {
	case infra.StorageModeConnectionSecret:
		creds, err := storage.ParseConnectionSecret(cfg.StorageConnSecret)
		if err != nil {
			return nil, err
		}
		return storage.NewBlobClient(creds, nil)
	case infra.StorageModeAccountKey:
		creds, err := storage.NewBlobCredentials(cfg.StorageAccount, cfg.StorageAccessKey, cfg.StorageEndpoint)
		if err != nil {
			return nil, err
		}
		return storage.NewBlobClient(creds, nil)
	default:
		return storage.NewFileBackend(cfg.StoragePath, cfg.StorageBaseURL, []byte(cfg.StorageSigningKey))
	}
}

func buildVideoProvider(cfg *infra.Config, logger *infra.Logger) (providers.VideoProvider, error) {
	routes := providers.DefaultRoutes("")
	if cfg.ProviderRoutesFile != "" {
		loaded, err := providers.LoadRoutes(cfg.ProviderRoutesFile)
		if err != nil {
			return nil, err
		}
		routes = loaded
	}
	route, _ := routes.Resolve("video")
	baseURL := route.BaseURL
	if baseURL == "" {
		baseURL = cfg.ProviderBaseURL
	}
	return genai.NewClient(genai.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: baseURL,
		Model:   route.Model,
		Logger:  logger,
	})
}
