package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/dispatch"
	"mediagen/internal/gallery"
	"mediagen/internal/http/handlers"
	"mediagen/internal/http/httpapi"
	"mediagen/internal/infra"
	"mediagen/internal/jobs"
	"mediagen/internal/providers"
	"mediagen/internal/providers/genai"
	"mediagen/internal/service"
	"mediagen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: database connection failed")
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("api: schema bootstrap failed")
	}
	jobRepo := repo.NewJobRepository(pool)
	artifactRepo := repo.NewArtifactRepository(pool)

	backend, files, err := buildBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage configuration invalid")
	}
	store := storage.NewStore(backend, artifactRepo, cfg.ImageContainer, cfg.VideoContainer, logger)
	issuer := storage.NewTokenIssuer(artifactRepo, backend, cfg.MaxTokenTTL)
	index := gallery.NewIndex(artifactRepo, jobRepo, logger)

	routes, err := loadRoutes(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: provider route table invalid")
	}
	imageProvider, videoProvider, err := buildProviders(cfg, routes, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: provider configuration invalid")
	}

	dispatcher := dispatch.NewDispatcher(imageProvider, videoProvider, routes, jobRepo,
		service.StoreResolver{Store: store},
		dispatch.Defaults{Size: cfg.DefaultSize, QualityTier: cfg.DefaultQualityTier, OutputFormat: cfg.DefaultOutputFormat},
		logger)
	tracker := jobs.NewTracker(jobRepo, store, videoProvider, jobs.Config{
		PollInterval:    cfg.PollInterval,
		PollIntervalMax: cfg.PollIntervalMax,
		JobTimeout:      cfg.JobTimeout,
	}, logger)

	svc := service.New(dispatcher, tracker, store, issuer, index, jobRepo, logger)
	app := handlers.NewApp(svc, files, logger)
	router := httpapi.NewRouter(app, logger, httpapi.Options{
		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		GenerateLimit:  30,
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// buildBackend selects the storage backend from the resolved credential
// strategy. The *FileBackend is returned separately because only the
// filesystem flavor powers the local signed /files route.
func buildBackend(cfg *infra.Config) (storage.Backend, *storage.FileBackend, error) {
	switch cfg.StorageMode {
	case infra.StorageModeConnectionSecret:
		creds, err := storage.ParseConnectionSecret(cfg.StorageConnSecret)
		if err != nil {
			return nil, nil, err
		}
		client, err := storage.NewBlobClient(creds, nil)
		return client, nil, err
	case infra.StorageModeAccountKey:
		creds, err := storage.NewBlobCredentials(cfg.StorageAccount, cfg.StorageAccessKey, cfg.StorageEndpoint)
		if err != nil {
			return nil, nil, err
		}
		client, err := storage.NewBlobClient(creds, nil)
		return client, nil, err
	default:
		files, err := storage.NewFileBackend(cfg.StoragePath, cfg.StorageBaseURL, []byte(cfg.StorageSigningKey))
		return files, files, err
	}
}

func loadRoutes(cfg *infra.Config) (providers.RouteTable, error) {
	if cfg.ProviderRoutesFile != "" {
		return providers.LoadRoutes(cfg.ProviderRoutesFile)
	}
	return providers.DefaultRoutes(""), nil
}

func buildProviders(cfg *infra.Config, routes providers.RouteTable, logger *infra.Logger) (providers.ImageProvider, providers.VideoProvider, error) {
	imageRoute, _ := routes.Resolve("image")
	imageClient, err := genai.NewClient(genai.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: firstNonEmpty(imageRoute.BaseURL, cfg.ProviderBaseURL),
		Model:   imageRoute.Model,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	videoRoute, _ := routes.Resolve("video")
	videoClient, err := genai.NewClient(genai.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: firstNonEmpty(videoRoute.BaseURL, cfg.ProviderBaseURL),
		Model:   videoRoute.Model,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return imageClient, videoClient, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
