package leaderboard

import (
	"context"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// Cache is the fast ranking store (Redis sorted set). It may lag the ledger
// and may be unavailable; callers fall back to Source.
type Cache interface {
	// SetScore records a user's total XP.
	SetScore(ctx context.Context, userID shared.UserID, xp int) error
	// Top returns user ids and scores, highest first.
	Top(ctx context.Context, limit int) ([]*Entry, error)
	// Rank returns the 1-based rank, or shared.Unranked.
	Rank(ctx context.Context, userID shared.UserID) (shared.Rank, error)
	// Replace atomically swaps the whole set.
	Replace(ctx context.Context, entries []*Entry) error
}

// Source reads authoritative rankings from the ledger store.
type Source interface {
	// TopEntries returns entries ordered by XP desc with streaks filled in.
	TopEntries(ctx context.Context, limit int) ([]*Entry, error)
	RankOf(ctx context.Context, userID shared.UserID) (shared.Rank, error)
}
