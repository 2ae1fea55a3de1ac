package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DETECT LAPSED STREAKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// StreakReader lists streaks that are still running.
type StreakReader interface {
	ActiveStreaks(ctx context.Context) ([]gamification.Streak, error)
}

// DetectLapsedStreaksJob announces streaks that are about to break or have
// already broken. It never writes: a lapsed streak is reset by the next
// recorded activity.
type DetectLapsedStreaksJob struct {
	reader    StreakReader
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger

	lastStats atomic.Value // *StreakScanStats
}

// StreakScanStats contains statistics from a scan.
type StreakScanStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	AtRisk    int
	Lapsed    int
}

// NewDetectLapsedStreaksJob creates the job.
func NewDetectLapsedStreaksJob(reader StreakReader, clock timeutil.Clock, publisher shared.EventPublisher, log *logger.Logger) *DetectLapsedStreaksJob {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DetectLapsedStreaksJob{
		reader:    reader,
		clock:     clock,
		publisher: publisher,
		log:       log.With(logger.Component("job.detect_lapsed_streaks")),
	}
}

// Name returns the job name.
func (j *DetectLapsedStreaksJob) Name() string {
	return "detect_lapsed_streaks"
}

// Description returns a human-readable description.
func (j *DetectLapsedStreaksJob) Description() string {
	return "Publishes at-risk and lapsed streak events"
}

// Run scans all active streaks.
func (j *DetectLapsedStreaksJob) Run(ctx context.Context) error {
	stats := &StreakScanStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	streaks, err := j.reader.ActiveStreaks(ctx)
	if err != nil {
		return fmt.Errorf("list active streaks: %w", err)
	}
	stats.Scanned = len(streaks)

	today := timeutil.TodayFrom(j.clock)
	for i := range streaks {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := &streaks[i]

		var eventType shared.EventType
		switch {
		case s.IsLapsed(today):
			eventType = shared.EventStreakLapsed
			stats.Lapsed++
		case s.IsAtRisk(today):
			eventType = shared.EventStreakAtRisk
			stats.AtRisk++
		default:
			continue
		}

		event := shared.NewStreakEvent(eventType, string(s.UserID), s.Current, s.Longest, s.LastActivity)
		if err := j.publisher.Publish(event); err != nil {
			j.log.Warn("failed to publish streak event",
				logger.UserID(string(s.UserID)),
				logger.String("event", string(eventType)),
				logger.Err(err),
			)
		}
	}

	j.log.Info("streak scan finished",
		logger.Int("scanned", stats.Scanned),
		logger.Int("at_risk", stats.AtRisk),
		logger.Int("lapsed", stats.Lapsed),
	)
	return nil
}

// LastStats returns statistics from the last run, or nil.
func (j *DetectLapsedStreaksJob) LastStats() *StreakScanStats {
	if v := j.lastStats.Load(); v != nil {
		return v.(*StreakScanStats)
	}
	return nil
}
