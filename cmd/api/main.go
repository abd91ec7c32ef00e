package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"storybook/internal/adapter/repo"
	"storybook/internal/domain"
	"storybook/internal/http/handlers"
	"storybook/internal/http/httpapi"
	"storybook/internal/infra"
	"storybook/internal/infra/geoip"
	"storybook/internal/middleware"
	"storybook/internal/notify"
	"storybook/internal/observability"
	"storybook/internal/pipeline"
	"storybook/internal/providers/illustration"
	"storybook/internal/providers/narrative"
	"storybook/internal/storage"
	"storybook/internal/uploader"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := infra.Migrate(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	jobs := repo.NewJobRepository(dbpool)
	assets := repo.NewAssetRepository(dbpool)

	var store storage.BlobStore
	staticDir := ""
	if cfg.S3Enabled() {
		store, err = storage.NewObjectStore(ctx, storage.ObjectStoreOptions{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect object storage")
		}
	} else {
		fileStore, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare file storage")
		}
		store = fileStore
		staticDir = fileStore.BasePath()
	}

	narrator, err := narrative.NewClient(narrative.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure narrative client")
	}
	illustrator, err := illustration.NewClient(illustration.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIImageModel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure illustration client")
	}

	// Status fan-out: Redis pub/sub when configured, DB polling otherwise.
	var publisher domain.StatusPublisher
	var subscriber notify.Subscriber
	if cfg.RedisAddr != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		notifier := notify.NewRedisNotifier(rdb, jobs, logger)
		publisher, subscriber = notifier, notifier
	} else {
		poller := notify.NewPollNotifier(jobs, cfg.StatusPollInterval, logger)
		publisher, subscriber = poller, poller
	}

	metrics := observability.NewMetrics()

	uploads := uploader.New(store, assets, logger)
	orchestrator := pipeline.New(jobs, uploads, narrator, illustrator, publisher, metrics, logger, pipeline.Config{
		UploadTimeout:       cfg.UploadTimeout,
		NarrativeTimeout:    cfg.NarrativeTimeout,
		IllustrationTimeout: cfg.IllustrationTimeout,
		IllustrationRetries: cfg.IllustrationRetries,
	})

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Jobs:           jobs,
		Assets:         assets,
		Pipeline:       orchestrator,
		Notifier:       subscriber,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	router := httpapi.NewRouter(app, cfg, metrics, lookup, staticDir)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
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
	// Let in-flight story pipelines finish before exiting.
	orchestrator.Wait()
	logger.Info().Msg("server stopped")
}
