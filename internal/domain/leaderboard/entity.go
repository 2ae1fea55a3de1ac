// Package leaderboard contains the XP ranking model. The source of truth is
// the gamification ledger; rankings here are derived views, optionally
// cached in Redis.
package leaderboard

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilEntry      = errors.New("leaderboard: nil entry")
	ErrDuplicateUser = errors.New("leaderboard: duplicate user")
	ErrInvalidLimit  = shared.NewDomainError("leaderboard", "Top", shared.ErrValueOutOfRange, "limit must be between 1 and 100")
)

// MaxLimit bounds a single leaderboard page.
const MaxLimit = 100

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one row of the leaderboard.
type Entry struct {
	Rank          shared.Rank
	UserID        shared.UserID
	XP            int
	Level         int
	CurrentStreak int
}

// String returns a compact representation for logging.
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %d, User: %s, XP: %d}", e.Rank, e.UserID, e.XP)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking is an ordered list of entries.
type Ranking struct {
	entries []*Entry
	byID    map[shared.UserID]*Entry
}

// NewRanking creates an empty Ranking.
func NewRanking() *Ranking {
	return &Ranking{byID: make(map[shared.UserID]*Entry)}
}

// Add appends an entry without sorting.
func (r *Ranking) Add(e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	if _, ok := r.byID[e.UserID]; ok {
		return ErrDuplicateUser
	}
	r.entries = append(r.entries, e)
	r.byID[e.UserID] = e
	return nil
}

// SortByXP orders entries by XP descending and assigns competition ranks:
// equal XP shares a rank and the next distinct XP skips ahead (1, 1, 3).
func (r *Ranking) SortByXP() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].XP != r.entries[j].XP {
			return r.entries[i].XP > r.entries[j].XP
		}
		return r.entries[i].UserID < r.entries[j].UserID
	})
	for i, e := range r.entries {
		if i > 0 && e.XP == r.entries[i-1].XP {
			e.Rank = r.entries[i-1].Rank
		} else {
			e.Rank = shared.Rank(i + 1)
		}
	}
}

// Get returns the entry for userID, or nil.
func (r *Ranking) Get(userID shared.UserID) *Entry {
	return r.byID[userID]
}

// Top returns the first n entries.
func (r *Ranking) Top(n int) []*Entry {
	if n <= 0 {
		return nil
	}
	n = min(n, len(r.entries))
	out := make([]*Entry, n)
	copy(out, r.entries[:n])
	return out
}

// Count returns the number of entries.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// ClampLimit normalises a requested page size.
func ClampLimit(limit int) (int, error) {
	if limit == 0 {
		return 10, nil
	}
	if limit < 1 || limit > MaxLimit {
		return 0, ErrInvalidLimit
	}
	return limit, nil
}
