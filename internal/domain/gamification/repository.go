package gamification

import (
	"context"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Store is the persistence boundary of the gamification core.
// Implementations live in infrastructure/persistence (postgres, memory).
type Store interface {
	// WithinUser runs fn as one atomic unit of work for userID.
	//
	// Units of work for the same user never interleave; units for different
	// users may run concurrently. If fn returns an error nothing it wrote is
	// kept. A missing user yields shared.ErrUserNotFound before fn runs.
	// Storage connectivity failures match shared.ErrServiceUnavailable.
	WithinUser(ctx context.Context, userID shared.UserID, fn func(ctx context.Context, tx Tx) error) error

	Reader
}

// Tx is the set of operations available inside a unit of work. Every method
// is scoped to the user the unit of work was opened for.
type Tx interface {
	UserID() shared.UserID

	// Account returns the locked account row.
	Account(ctx context.Context) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
	AppendTransaction(ctx context.Context, t *Transaction) error

	// Streak returns nil, nil when the user has no streak yet.
	Streak(ctx context.Context) (*Streak, error)
	SaveStreak(ctx context.Context, s *Streak) error

	// OpenBadges returns active badges of kind that the user has not unlocked,
	// each with current progress (empty if none stored).
	OpenBadges(ctx context.Context, kind RequirementKind) ([]BadgeView, error)
	SaveBadgeProgress(ctx context.Context, p *BadgeProgress) error

	// OpenQuests returns quests of kind that are open at now and that the
	// user has not completed, each with current progress.
	OpenQuests(ctx context.Context, kind RequirementKind, now time.Time) ([]QuestView, error)
	// Quest returns the catalogue row or shared.ErrQuestNotFound.
	Quest(ctx context.Context, questID string) (*Quest, error)
	// QuestProgress returns shared.ErrQuestNotStarted when there is no row.
	QuestProgress(ctx context.Context, questID string) (*QuestProgress, error)
	SaveQuestProgress(ctx context.Context, p *QuestProgress) error

	// Reward returns the catalogue row or shared.ErrRewardNotFound.
	Reward(ctx context.Context, rewardID string) (*Reward, error)
	RewardClaimed(ctx context.Context, rewardID string) (bool, error)
	SaveRewardClaim(ctx context.Context, c *RewardClaim) error
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// Reader serves queries outside units of work.
type Reader interface {
	// EnsureAccount creates a zero account for a user first seen.
	EnsureAccount(ctx context.Context, userID shared.UserID) error
	GetAccount(ctx context.Context, userID shared.UserID) (*Account, error)
	// GetStreak returns nil, nil when the user has no streak.
	GetStreak(ctx context.Context, userID shared.UserID) (*Streak, error)
	ListTransactions(ctx context.Context, userID shared.UserID, page shared.Pagination) ([]Transaction, error)
	ListBadges(ctx context.Context, userID shared.UserID, filter BadgeFilter) ([]BadgeView, error)
	ListQuests(ctx context.Context, userID shared.UserID, filter QuestFilter, now time.Time) ([]QuestView, error)
	// TopAccounts returns accounts ordered by XP desc, then user id.
	TopAccounts(ctx context.Context, limit int) ([]Account, error)
	// RankOf returns 1 + number of users with strictly more XP.
	RankOf(ctx context.Context, userID shared.UserID) (shared.Rank, error)
	// ActiveStreaks returns streaks with Current > 0, for the lapse job.
	ActiveStreaks(ctx context.Context) ([]Streak, error)
}

// Catalog manages badge, quest and reward definitions.
type Catalog interface {
	UpsertBadge(ctx context.Context, b *Badge) error
	UpsertQuest(ctx context.Context, q *Quest) error
	UpsertReward(ctx context.Context, r *Reward) error
}
