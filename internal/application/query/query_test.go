package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/memory"
	"github.com/mentorhub/mentorhub-backend/pkg/circuitbreaker"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

type failingCache struct {
	calls int
}

func (c *failingCache) SetScore(context.Context, shared.UserID, int) error { return nil }
func (c *failingCache) Top(context.Context, int) ([]*leaderboard.Entry, error) {
	c.calls++
	return nil, errors.New("connection refused")
}
func (c *failingCache) Rank(context.Context, shared.UserID) (shared.Rank, error) {
	return shared.Unranked, nil
}
func (c *failingCache) Replace(context.Context, []*leaderboard.Entry) error { return nil }

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	award := func(user shared.UserID, xp int) {
		require.NoError(t, store.EnsureAccount(ctx, user))
		if xp == 0 {
			return
		}
		require.NoError(t, store.WithinUser(ctx, user, func(ctx context.Context, tx gamification.Tx) error {
			acc, err := tx.Account(ctx)
			if err != nil {
				return err
			}
			out, err := acc.Apply("t-"+user.String(), xp, gamification.SourceManual, "", "", gamification.DefaultThresholds, time.Now())
			if err != nil {
				return err
			}
			if err := tx.SaveAccount(ctx, acc); err != nil {
				return err
			}
			return tx.AppendTransaction(ctx, &out.Transaction)
		}))
	}
	award("alice", 350)
	award("bob", 350)
	award("carol", 120)
	award("dave", 0)
	return store
}

func TestGetLeaderboard_FallsBackWhenCacheFails(t *testing.T) {
	store := seed(t)
	cache := &failingCache{}
	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithTimeout(time.Hour))
	h := NewGetLeaderboardHandler(store, cache, breaker, gamification.DefaultThresholds, nil)

	for i := 0; i < 3; i++ {
		res, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 3, Viewer: "carol"})
		require.NoError(t, err)
		require.Len(t, res.Entries, 3)
		assert.False(t, res.FromCache)
		assert.Equal(t, 1, res.Entries[0].Rank)
		assert.Equal(t, 1, res.Entries[1].Rank)
		assert.Equal(t, 3, res.Entries[2].Rank)
		assert.Equal(t, 3, res.Entries[0].Level)
		assert.Equal(t, 3, res.ViewerRank)
	}
	// Breaker opened after two failures.
	assert.Equal(t, 2, cache.calls)
}

func TestGetLeaderboard_RejectsBadLimit(t *testing.T) {
	h := NewGetLeaderboardHandler(seed(t), nil, nil, gamification.DefaultThresholds, nil)
	_, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 500})
	assert.ErrorIs(t, err, leaderboard.ErrInvalidLimit)
}

func TestGetProfile(t *testing.T) {
	store := seed(t)
	h := NewGetProfileHandler(store, gamification.DefaultThresholds, timeutil.SystemClock{})

	res, err := h.Handle(context.Background(), GetProfileQuery{UserID: "carol", HistoryLimit: 5})
	require.NoError(t, err)
	assert.Equal(t, 120, res.XP)
	assert.Equal(t, 2, res.Level.Level)
	assert.Equal(t, 20, res.Level.XPInLevel)
	assert.Equal(t, 200, res.Level.XPForLevel)
	assert.Equal(t, 3, res.Rank)
	assert.Equal(t, 0, res.Streak.Current)
	require.Len(t, res.History, 1)
	assert.Equal(t, 120, res.History[0].BalanceAfter)

	_, err = h.Handle(context.Background(), GetProfileQuery{UserID: "nobody"})
	assert.True(t, shared.IsNotFound(err))
}

func TestListQuests_UnknownType(t *testing.T) {
	h := NewListQuestsHandler(seed(t), nil)
	_, err := h.Handle(context.Background(), ListQuestsQuery{UserID: "alice", Filter: gamification.QuestFilter{QuestType: "monthly"}})
	assert.True(t, shared.IsValidation(err))
}
