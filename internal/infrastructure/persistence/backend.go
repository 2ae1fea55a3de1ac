// Package persistence selects and opens the storage backends for a process.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mentorhub/mentorhub-backend/config"
	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/memory"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/postgres"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/redis"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/retry"
)

// Ledger is the gamification store plus its read side.
type Ledger interface {
	gamification.Store
	gamification.Reader
}

// Options selects the backends. An empty Postgres.URL selects the in-memory
// store; a nil Redis disables the leaderboard cache.
type Options struct {
	Postgres      postgres.Config
	RunMigrations bool
	Redis         *redis.Config

	// ConnectAttempts bounds startup retries for each dependency.
	ConnectAttempts int
}

// OptionsFromConfig maps the process configuration onto backend options.
func OptionsFromConfig(cfg *config.Config) Options {
	pg := postgres.DefaultConfig()
	pg.URL = cfg.Database.URL
	pg.MaxConns = int32(cfg.Database.MaxConns)
	pg.MinConns = int32(cfg.Database.MinConns)
	pg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pg.ConnectTimeout = cfg.Database.ConnectTimeout

	opts := Options{
		Postgres:        pg,
		RunMigrations:   cfg.Database.RunMigrations,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}
	if !cfg.Redis.Disabled {
		rc := redis.DefaultConfig()
		rc.URL = cfg.Redis.URL
		rc.Host = cfg.Redis.Host
		rc.Port = cfg.Redis.Port
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize
		rc.MinIdleConns = cfg.Redis.MinIdleConns
		rc.DialTimeout = cfg.Redis.DialTimeout
		rc.ReadTimeout = cfg.Redis.ReadTimeout
		rc.WriteTimeout = cfg.Redis.WriteTimeout
		rc.KeyPrefix = cfg.Redis.KeyPrefix
		opts.Redis = &rc
	}
	return opts
}

// Backend holds the opened storage for one process.
type Backend struct {
	Ledger      Ledger
	States      collab.StateRepository
	Mentorships collab.MentorshipRepository
	Source      leaderboard.Source

	// Memory is set when running without Postgres.
	Memory *memory.Store
	// DB is set when running on Postgres.
	DB *postgres.Connection
	// Cache is set when Redis is configured.
	Cache *redis.Cache
}

// Open connects to the configured backends, retrying while they start.
func Open(ctx context.Context, opts Options, log *logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("persistence"))
	b := &Backend{}

	if opts.Postgres.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		store := memory.NewStore()
		b.Memory = store
		b.Ledger = store
		b.States = store
		b.Mentorships = store
		b.Source = store
	} else {
		conn, err := connectWithRetry(ctx, opts.ConnectAttempts, log, "postgres", func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, opts.Postgres)
		})
		if err != nil {
			return nil, err
		}
		b.DB = conn

		if opts.RunMigrations {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
			log.Info("migrations applied", logger.Int("count", applied))
		}

		collabRepo := postgres.NewCollabRepository(conn)
		b.Ledger = postgres.NewStore(conn)
		b.States = collabRepo
		b.Mentorships = collabRepo
		b.Source = postgres.NewLeaderboardRepository(conn)
	}

	if opts.Redis != nil {
		cache, err := connectWithRetry(ctx, opts.ConnectAttempts, log, "redis", func(ctx context.Context) (*redis.Cache, error) {
			return redis.NewCache(ctx, *opts.Redis)
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Cache = cache
	}

	return b, nil
}

// LeaderboardCache returns the Redis-backed cache, or nil without Redis.
func (b *Backend) LeaderboardCache() leaderboard.Cache {
	if b.Cache == nil {
		return nil
	}
	return redis.NewLeaderboardCache(b.Cache)
}

// Close releases every opened backend.
func (b *Backend) Close() {
	if b.Cache != nil {
		_ = b.Cache.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
}

func connectWithRetry[T any](ctx context.Context, attempts int, log *logger.Logger, name string, dial func(context.Context) (T, error)) (T, error) {
	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Warn("dependency not ready",
			logger.String("dependency", name),
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Err(err),
		)
	}
	r := retry.StartupRetrier(onRetry)
	if attempts > 0 {
		r = retry.New(
			retry.WithMaxAttempts(attempts),
			retry.WithInitialDelay(250*time.Millisecond),
			retry.WithMaxDelay(5*time.Second),
			retry.WithRetryIf(func(err error) bool { return !errors.Is(err, context.Canceled) }),
			retry.WithOnRetry(onRetry),
		)
	}

	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = dial(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("connect %s: %w", name, err)
	}
	log.Info("connected", logger.String("dependency", name))
	return out, nil
}
