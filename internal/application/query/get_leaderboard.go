// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/circuitbreaker"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Top-N users by XP. Served from the Redis sorted set when it is healthy,
// otherwise straight from the ledger store.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the query parameters.
type GetLeaderboardQuery struct {
	// Limit defaults to 10, at most 100.
	Limit int

	// Viewer, when set, gets their own rank in the result.
	Viewer shared.UserID
}

// LeaderboardEntryDTO is one row of the leaderboard.
type LeaderboardEntryDTO struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	XP            int    `json:"xp"`
	Level         int    `json:"level"`
	CurrentStreak int    `json:"current_streak"`
}

// GetLeaderboardResult contains the leaderboard page.
type GetLeaderboardResult struct {
	Entries     []LeaderboardEntryDTO `json:"entries"`
	ViewerRank  int                   `json:"viewer_rank,omitempty"`
	FromCache   bool                  `json:"-"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetLeaderboardHandler handles leaderboard queries.
type GetLeaderboardHandler struct {
	source     leaderboard.Source
	cache      leaderboard.Cache
	breaker    *circuitbreaker.CircuitBreaker
	thresholds gamification.Thresholds
	log        *logger.Logger
}

// NewGetLeaderboardHandler creates a new handler. cache may be nil.
func NewGetLeaderboardHandler(
	source leaderboard.Source,
	cache leaderboard.Cache,
	breaker *circuitbreaker.CircuitBreaker,
	thresholds gamification.Thresholds,
	log *logger.Logger,
) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(nil)
	}
	return &GetLeaderboardHandler{
		source:     source,
		cache:      cache,
		breaker:    breaker,
		thresholds: thresholds,
		log:        log,
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	limit, err := leaderboard.ClampLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	result := &GetLeaderboardResult{GeneratedAt: time.Now().UTC()}

	entries, fromCache := h.fromCache(ctx, limit)
	if !fromCache {
		entries, err = h.source.TopEntries(ctx, limit)
		if err != nil {
			return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrServiceUnavailable, "failed to load leaderboard", err)
		}
	}
	result.FromCache = fromCache

	result.Entries = make([]LeaderboardEntryDTO, 0, len(entries))
	for _, e := range entries {
		level := e.Level
		if level == 0 {
			level = gamification.LevelFor(e.XP, h.thresholds)
		}
		result.Entries = append(result.Entries, LeaderboardEntryDTO{
			Rank:          e.Rank.Int(),
			UserID:        e.UserID.String(),
			XP:            e.XP,
			Level:         level,
			CurrentStreak: e.CurrentStreak,
		})
	}

	if q.Viewer != "" {
		rank, err := h.source.RankOf(ctx, q.Viewer)
		if err == nil {
			result.ViewerRank = rank.Int()
		}
	}
	return result, nil
}

// fromCache reads the sorted set through the breaker. An empty set counts as
// a miss so a cold cache never hides the ledger.
func (h *GetLeaderboardHandler) fromCache(ctx context.Context, limit int) ([]*leaderboard.Entry, bool) {
	if h.cache == nil {
		return nil, false
	}
	entries, err := circuitbreaker.Call(ctx, h.breaker, func(ctx context.Context) ([]*leaderboard.Entry, error) {
		return h.cache.Top(ctx, limit)
	})
	if err != nil {
		if !circuitbreaker.IsRejected(err) {
			h.log.Warn("leaderboard cache read failed", logger.Err(err))
		}
		return nil, false
	}
	return entries, len(entries) > 0
}
