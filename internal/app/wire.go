package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/tradematcher/deskclient/internal/blob/s3"
	"github.com/tradematcher/deskclient/internal/cache/redis"
	"github.com/tradematcher/deskclient/internal/config"
	"github.com/tradematcher/deskclient/internal/domain"
	"github.com/tradematcher/deskclient/internal/platform/engine"
	"github.com/tradematcher/deskclient/internal/session"
	"github.com/tradematcher/deskclient/internal/store/postgres"
)

// Dependencies bundles everything the application goroutines need to operate.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Controller *session.Controller
	Rest       *engine.RestClient

	// Optional, nil when the backing service is not configured.
	Bus       domain.SignalBus
	BookCache *redis.BookCache
	Recorder  *postgres.SessionStore
	Archiver  *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// The REST client resolves the bearer token through the controller so a
	// login or forced de-auth is visible on the next request.
	deps.Rest = engine.NewRestClient(cfg.Engine.BaseURL, func() string {
		if deps.Controller == nil {
			return ""
		}
		return deps.Controller.Token()
	})

	deps.Controller = session.New(logger, deps.Rest, session.Config{
		Depth:        cfg.Session.Depth,
		TradeLimit:   cfg.Session.TradeLimit,
		EventLimit:   cfg.Session.EventLimit,
		FillLimit:    cfg.Session.FillLimit,
		HistoryLimit: cfg.Session.HistoryLimit,
	})

	// --- Redis (signal bus + live book mirror) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewSignalBus(redisClient)
		deps.BookCache = redis.NewBookCache(redisClient)
		deps.Controller.AttachBus(deps.Bus)
	}

	// --- PostgreSQL (session recorder) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Recorder = postgres.NewSessionStore(pgClient.Pool())
		deps.Controller.AttachRecorder(deps.Recorder)
	}

	// --- S3 (session archiver, reads from the recorder) ---
	if cfg.Archive.Enabled && deps.Recorder != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			logger,
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Controller.SessionID(),
			deps.Recorder,
			deps.Recorder,
			deps.Recorder,
			deps.Recorder,
		)
	}

	return deps, cleanup, nil
}
