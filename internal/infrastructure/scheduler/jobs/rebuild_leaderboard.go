// Package jobs contains the background jobs run by the worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/redis"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// Locker grants a named lock shared between worker instances.
type Locker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (func(context.Context) error, error)
}

// RebuildLeaderboardJob reloads the leaderboard cache from the store.
// Incremental SetScore calls keep the cache close to the store; this job
// repairs any drift left by failed writes or a cache flush.
type RebuildLeaderboardJob struct {
	source    leaderboard.Source
	cache     leaderboard.Cache
	locker    Locker
	publisher shared.EventPublisher
	log       *logger.Logger
	config    RebuildLeaderboardConfig
	owner     string
	retrier   *retry.Retrier

	lastStats atomic.Value // *RebuildStats
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Size is how many top entries are loaded into the cache.
	Size int

	// LockTTL bounds how long one instance may hold the rebuild lock.
	LockTTL time.Duration

	// Timeout is the maximum duration for one rebuild.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		Size:    1000,
		LockTTL: redis.TTLDistributedLock,
		Timeout: 2 * time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Entries     int
	Skipped     bool
}

// NewRebuildLeaderboardJob creates the job. locker and publisher may be nil.
func NewRebuildLeaderboardJob(
	source leaderboard.Source,
	cache leaderboard.Cache,
	locker Locker,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	defaults := DefaultRebuildLeaderboardConfig()
	if config.Size <= 0 {
		config.Size = defaults.Size
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}

	host, _ := os.Hostname()
	return &RebuildLeaderboardJob{
		source:    source,
		cache:     cache,
		locker:    locker,
		publisher: publisher,
		log:       log.With(logger.Component("job.rebuild_leaderboard")),
		config:    config,
		owner:     fmt.Sprintf("%s/%s", host, uuid.NewString()),
		retrier:   retry.JobRetrier(),
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Reloads the cached leaderboard from the XP ledger"
}

// Run executes the rebuild.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	stats := &RebuildStats{StartedAt: time.Now()}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	if j.locker != nil {
		release, err := j.locker.AcquireLock(ctx, j.Name(), j.owner, j.config.LockTTL)
		if errors.Is(err, redis.ErrLockHeld) {
			stats.Skipped = true
			j.log.Info("rebuild already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.log.Warn("failed to release lock", logger.Err(err))
			}
		}()
	}

	var entries []*leaderboard.Entry
	err := j.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		entries, err = j.source.TopEntries(ctx, j.config.Size)
		if err != nil {
			return retryIfTransient(fmt.Errorf("load top entries: %w", err))
		}
		if err := j.cache.Replace(ctx, entries); err != nil {
			return retryIfTransient(fmt.Errorf("replace cache: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}
	stats.Entries = len(entries)

	if err := j.publisher.Publish(shared.NewLeaderboardRebuiltEvent(len(entries))); err != nil {
		j.log.Warn("failed to publish rebuild event", logger.Err(err))
	}

	j.log.Info("leaderboard rebuilt", logger.Int("entries", len(entries)))
	return nil
}

// LastStats returns statistics from the last run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	if v := j.lastStats.Load(); v != nil {
		return v.(*RebuildStats)
	}
	return nil
}

// retryIfTransient marks storage and cache outages for another attempt.
func retryIfTransient(err error) error {
	if shared.IsTransient(err) {
		return retry.Retryable(err)
	}
	return err
}
