package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/equitybot/internal/blob/s3"
	"github.com/alanyoungcy/equitybot/internal/cache/redis"
	"github.com/alanyoungcy/equitybot/internal/config"
	"github.com/alanyoungcy/equitybot/internal/domain"
	"github.com/alanyoungcy/equitybot/internal/notify"
	"github.com/alanyoungcy/equitybot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. Optional parts
// are left nil when their backend is disabled.
type Dependencies struct {
	// Stores
	OrderStore    domain.OrderStore
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore
	SymbolConfigs domain.SymbolConfigStore

	// Caches
	TickCache   domain.TickCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	EventBus    *redis.EventBus

	// Blob storage
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier
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

	// --- PostgreSQL ---
	var orders *postgres.OrderStore
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

		pool := pgClient.Pool()
		orders = postgres.NewOrderStore(pool)
		deps.OrderStore = orders
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		if cfg.Postgres.SymbolConfigs {
			deps.SymbolConfigs = postgres.NewSymbolConfigStore(pool)
		}
	}

	// --- Symbol configs from file ---
	if deps.SymbolConfigs == nil {
		store, err := config.OpenSymbolFile(cfg.Trading.SymbolsFile)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.SymbolConfigs = store
		logger.InfoContext(ctx, "symbol configs loaded from file", slog.String("path", store.Path()))
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.TickCache = redis.NewTickCache(redisClient, cfg.Redis.TickTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		if cfg.Redis.SessionLock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
	}

	// --- S3 archive (needs the order journal in Postgres) ---
	if cfg.Archive.Enabled && cfg.S3.Enabled {
		if orders == nil {
			logger.WarnContext(ctx, "archive enabled without postgres, skipping")
		} else {
			bucket, err := s3blob.OpenBucket(ctx, s3blob.BucketConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			if err := bucket.Ping(ctx); err != nil {
				logger.WarnContext(ctx, "archive bucket not reachable yet",
					slog.String("bucket", bucket.Name()),
					slog.String("error", err.Error()),
				)
			}
			deps.Archiver = s3blob.NewArchiver(
				bucket,
				orders,
				deps.AuditStore,
				s3blob.ArchiverOptions{Purge: cfg.Archive.Purge},
				logger,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
