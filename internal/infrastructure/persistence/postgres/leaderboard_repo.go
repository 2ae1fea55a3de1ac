package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Source for PostgreSQL. It is
// the authoritative ranking used when the Redis cache is cold or down, and
// the input of the rebuild job.
type LeaderboardRepository struct {
	conn  *Connection
	store *Store
}

var _ leaderboard.Source = (*LeaderboardRepository)(nil)

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn, store: NewStore(conn)}
}

// TopEntries returns the top users by XP with competition ranks (1, 1, 3)
// computed by the database.
func (r *LeaderboardRepository) TopEntries(ctx context.Context, limit int) ([]*leaderboard.Entry, error) {
	rows, err := r.conn.Pool().Query(ctx, `
		SELECT RANK() OVER (ORDER BY u.experience_points DESC) AS rank,
		       u.user_id, u.experience_points, u.level,
		       COALESCE(s.current_streak, 0)
		FROM users u
		LEFT JOIN user_streaks s ON s.user_id = u.user_id
		ORDER BY u.experience_points DESC, u.user_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, storageErr("TopEntries", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*leaderboard.Entry, error) {
		var e leaderboard.Entry
		var rank int64
		var uid string
		if err := row.Scan(&rank, &uid, &e.XP, &e.Level, &e.CurrentStreak); err != nil {
			return nil, err
		}
		e.Rank = shared.Rank(rank)
		e.UserID = shared.UserID(uid)
		return &e, nil
	})
	return entries, storageErr("TopEntries", err)
}

// RankOf returns 1 + the number of users with strictly more XP.
func (r *LeaderboardRepository) RankOf(ctx context.Context, userID shared.UserID) (shared.Rank, error) {
	return r.store.RankOf(ctx, userID)
}
