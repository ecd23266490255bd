package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamsafe/backend/internal/auth"
	"github.com/streamsafe/backend/internal/config"
	"github.com/streamsafe/backend/internal/db"
	"github.com/streamsafe/backend/internal/handlers"
	"github.com/streamsafe/backend/internal/middleware"
	"github.com/streamsafe/backend/internal/realtime"
	"github.com/streamsafe/backend/internal/repositories"
	"github.com/streamsafe/backend/internal/storage"
	"github.com/streamsafe/backend/internal/videos"
)

// rateLimitIdleWindows is how many windows a quiet client keeps its bucket.
const rateLimitIdleWindows = 10

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains analysis runs and closes realtime
// connections.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	users := repositories.NewPostgresUserRepository(pool)
	records := repositories.NewPostgresVideoRepository(pool)

	tokens, err := auth.NewTokenService(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure tokens: %w", err)
	}

	s3Store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure object storage: %w", err)
	}
	blobs := storage.NewBreakerStore(s3Store, storage.DefaultBreakerConfig(), logger.With("component", "blob-store"))

	hub := realtime.NewHub(realtime.HubConfig{AllowedOrigins: cfg.AllowedOrigins}, logger.With("component", "realtime"))

	analyzer := videos.NewAnalyzer(
		records,
		videos.NewRandomClassifier(cfg.Analysis.SafeProbability),
		hub,
		videos.AnalyzerConfig{
			Steps:        cfg.Analysis.Steps,
			MinStepDelay: cfg.Analysis.MinStepDelay,
			MaxStepDelay: cfg.Analysis.MaxStepDelay,
		},
		logger.With("component", "analyzer"),
	)

	uploader := videos.NewUploader(blobs, records, analyzer, videos.UploaderConfig{
		Folder:   cfg.ObjectStore.Folder,
		MaxBytes: cfg.Upload.MaxBytes,
	}, logger.With("component", "uploader"))

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	limiter := middleware.NewIPRateLimiter(
		cfg.RateLimit.Requests,
		cfg.RateLimit.Window,
		cfg.RateLimit.Burst,
		cfg.RateLimit.Window*rateLimitIdleWindows,
	)

	deps := handlers.Dependencies{
		Logger:         logger,
		Users:          users,
		Sessions:       auth.NewManager(tokens, users),
		Uploader:       uploader,
		Catalog:        videos.NewCatalog(records, blobs, logger.With("component", "catalog")),
		Realtime:       hub,
		AuthLimiter:    limiter,
		TrustedProxies: proxies,
		Metrics:        promhttp.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
	}

	cleanup := func(ctx context.Context) error {
		err := analyzer.Shutdown(ctx)
		hub.Close()
		return err
	}

	return deps, cleanup, nil
}
