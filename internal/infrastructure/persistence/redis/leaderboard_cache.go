package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache implements leaderboard.Cache on Redis.
//
// Layout:
//   - Sorted set "leaderboard:xp" maps user id -> XP
//   - Hash "leaderboard:info" maps user id -> current streak
//
// Ranks are computed as 1 + the number of members with a strictly greater
// score, so tied users share a rank.
type LeaderboardCache struct {
	cache *Cache
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// SetScore records a user's total XP.
func (l *LeaderboardCache) SetScore(ctx context.Context, userID shared.UserID, xp int) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}
	err := l.cache.client.ZAdd(ctx, l.cache.key(keyLeaderboardXP), redis.Z{
		Score:  float64(xp),
		Member: userID.String(),
	}).Err()
	return unavailable("SetScore", err)
}

// Top returns the highest scores with competition ranks.
func (l *LeaderboardCache) Top(ctx context.Context, limit int) ([]*leaderboard.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	zs, err := l.cache.client.ZRevRangeWithScores(ctx, l.cache.key(keyLeaderboardXP), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, unavailable("Top", err)
	}
	if len(zs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i] = memberString(z.Member)
	}
	streaks, err := l.cache.client.HMGet(ctx, l.cache.key(keyLeaderboardInfo), ids...).Result()
	if err != nil {
		return nil, unavailable("Top", err)
	}

	return entriesFromScores(zs, streaks), nil
}

// Rank returns the 1-based competition rank, or shared.Unranked.
func (l *LeaderboardCache) Rank(ctx context.Context, userID shared.UserID) (shared.Rank, error) {
	key := l.cache.key(keyLeaderboardXP)
	score, err := l.cache.client.ZScore(ctx, key, userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return shared.Unranked, nil
	}
	if err != nil {
		return shared.Unranked, unavailable("Rank", err)
	}

	// Exclusive lower bound: members strictly above this score.
	above, err := l.cache.client.ZCount(ctx, key, "("+formatScore(score), "+inf").Result()
	if err != nil {
		return shared.Unranked, unavailable("Rank", err)
	}
	return shared.Rank(above + 1), nil
}

// Replace swaps the whole set. The new data is staged under temporary keys
// and renamed in one MULTI/EXEC so readers never see a partial board.
func (l *LeaderboardCache) Replace(ctx context.Context, entries []*leaderboard.Entry) error {
	xpKey := l.cache.key(keyLeaderboardXP)
	infoKey := l.cache.key(keyLeaderboardInfo)
	stagedXP := l.cache.key(keyLeaderboardStaged, ":xp")
	stagedInfo := l.cache.key(keyLeaderboardStaged, ":info")

	members := make([]redis.Z, 0, len(entries))
	info := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		if e == nil || e.UserID == "" {
			continue
		}
		members = append(members, redis.Z{Score: float64(e.XP), Member: e.UserID.String()})
		info[e.UserID.String()] = e.CurrentStreak
	}
	if len(members) == 0 {
		return unavailable("Replace", l.cache.client.Del(ctx, xpKey, infoKey).Err())
	}

	_, err := l.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, stagedXP, stagedInfo)
		pipe.ZAdd(ctx, stagedXP, members...)
		pipe.HSet(ctx, stagedInfo, info)
		pipe.Rename(ctx, stagedXP, xpKey)
		pipe.Rename(ctx, stagedInfo, infoKey)
		return nil
	})
	return unavailable("Replace", err)
}

// Count returns the number of ranked users.
func (l *LeaderboardCache) Count(ctx context.Context) (int64, error) {
	n, err := l.cache.client.ZCard(ctx, l.cache.key(keyLeaderboardXP)).Result()
	return n, unavailable("Count", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// entriesFromScores converts a ZREVRANGE page into ranked entries. streaks is
// aligned with zs; missing values read as zero.
func entriesFromScores(zs []redis.Z, streaks []interface{}) []*leaderboard.Entry {
	out := make([]*leaderboard.Entry, 0, len(zs))
	var prevXP int
	for i, z := range zs {
		xp := int(z.Score)
		rank := shared.Rank(i + 1)
		if i > 0 && xp == prevXP {
			rank = out[i-1].Rank
		}
		prevXP = xp

		e := &leaderboard.Entry{
			Rank:   rank,
			UserID: shared.UserID(memberString(z.Member)),
			XP:     xp,
		}
		if i < len(streaks) {
			if s, ok := streaks[i].(string); ok {
				e.CurrentStreak, _ = strconv.Atoi(s)
			}
		}
		out = append(out, e)
	}
	return out
}

func memberString(m interface{}) string {
	switch v := m.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
