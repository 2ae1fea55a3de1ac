package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

func TestWithinUser_UnknownUser(t *testing.T) {
	s := NewStore()
	called := false
	err := s.WithinUser(context.Background(), "ghost", func(ctx context.Context, tx gamification.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.False(t, called)
}

func TestWithinUser_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.EnsureAccount(ctx, "u1"))

	boom := errors.New("boom")
	err := s.WithinUser(ctx, "u1", func(ctx context.Context, tx gamification.Tx) error {
		acc, _ := tx.Account(ctx)
		out, err := acc.Apply("t1", 40, gamification.SourceManual, "", "", gamification.DefaultThresholds, s.now())
		require.NoError(t, err)
		require.NoError(t, tx.SaveAccount(ctx, acc))
		require.NoError(t, tx.AppendTransaction(ctx, &out.Transaction))
		st, _ := gamification.NewStreak("u1", s.now())
		require.NoError(t, tx.SaveStreak(ctx, st))
		return boom
	})
	require.ErrorIs(t, err, boom)

	acc, err := s.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, acc.XP)

	txns, err := s.ListTransactions(ctx, "u1", shared.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Empty(t, txns)

	st, err := s.GetStreak(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestWithinUser_Commit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.EnsureAccount(ctx, "u1"))
	require.NoError(t, s.UpsertBadge(ctx, &gamification.Badge{
		ID: "b1", Active: true, RequirementType: gamification.RequirementSessionsAttended, RequirementValue: 2,
	}))

	err := s.WithinUser(ctx, "u1", func(ctx context.Context, tx gamification.Tx) error {
		open, err := tx.OpenBadges(ctx, gamification.RequirementSessionsAttended)
		require.NoError(t, err)
		require.Len(t, open, 1)
		p := open[0].Progress
		p.Advance(2, 2, s.now())
		return tx.SaveBadgeProgress(ctx, &p)
	})
	require.NoError(t, err)

	views, err := s.ListBadges(ctx, "u1", gamification.BadgeFilter{UnlockedOnly: true})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Progress.Unlocked)

	// Unlocked badges are no longer open.
	err = s.WithinUser(ctx, "u1", func(ctx context.Context, tx gamification.Tx) error {
		open, err := tx.OpenBadges(ctx, gamification.RequirementSessionsAttended)
		require.NoError(t, err)
		assert.Empty(t, open)
		return nil
	})
	require.NoError(t, err)
}

func TestRankOf_TiesShareRank(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, u := range []shared.UserID{"a", "b", "c"} {
		require.NoError(t, s.EnsureAccount(ctx, u))
	}
	s.accounts["a"].XP = 100
	s.accounts["b"].XP = 100
	s.accounts["c"].XP = 50

	r, err := s.RankOf(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(1), r)

	r, err = s.RankOf(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, shared.Rank(3), r)

	entries, err := s.TopEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, shared.Rank(1), entries[1].Rank)
	assert.Equal(t, shared.Rank(3), entries[2].Rank)
}

func TestCollabState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	st, err := s.LoadOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "python", st.Language)

	require.NoError(t, s.SaveCode(ctx, "s1", "x = 1"))
	require.NoError(t, s.SaveLanguage(ctx, "s1", "go"))

	st, err = s.LoadOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "x = 1", st.Code)
	assert.Equal(t, "go", st.Language)

	_, err = s.GetMentorship(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}
