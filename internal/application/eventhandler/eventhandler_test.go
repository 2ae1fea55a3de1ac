package eventhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

type fakeCache struct {
	scores map[shared.UserID]int
	err    error
}

func (c *fakeCache) SetScore(_ context.Context, id shared.UserID, xp int) error {
	if c.err != nil {
		return c.err
	}
	c.scores[id] = xp
	return nil
}
func (c *fakeCache) Top(context.Context, int) ([]*leaderboard.Entry, error) { return nil, nil }
func (c *fakeCache) Rank(context.Context, shared.UserID) (shared.Rank, error) {
	return shared.Unranked, nil
}
func (c *fakeCache) Replace(context.Context, []*leaderboard.Entry) error { return nil }

type subscriptions map[shared.EventType]int

func (s subscriptions) Subscribe(t shared.EventType, _ shared.EventHandler) error {
	s[t]++
	return nil
}
func (s subscriptions) SubscribeAll(shared.EventHandler) error { return nil }

func TestOnXPAwarded_MirrorsBalance(t *testing.T) {
	cache := &fakeCache{scores: map[shared.UserID]int{}}
	h := NewOnXPAwardedHandler(cache, nil, nil)

	require.NoError(t, h.Handle(shared.NewXPAwardedEvent("alice", 40, 140, "module", "")))
	assert.Equal(t, 140, cache.scores["alice"])

	// Other event types are ignored.
	require.NoError(t, h.Handle(shared.NewLevelUpEvent("alice", 1, 2, 140)))
}

func TestOnXPAwarded_ReportsCacheFailure(t *testing.T) {
	h := NewOnXPAwardedHandler(&fakeCache{err: errors.New("down")}, nil, nil)
	assert.Error(t, h.Handle(shared.NewXPAwardedEvent("alice", 40, 140, "module", "")))
}

func TestRegister(t *testing.T) {
	subs := subscriptions{}
	require.NoError(t, NewOnXPAwardedHandler(&fakeCache{}, nil, nil).Register(subs))
	require.NoError(t, NewOnAchievementHandler(nil).Register(subs))

	assert.Equal(t, 1, subs[shared.EventXPAwarded])
	assert.Equal(t, 1, subs[shared.EventXPSpent])
	assert.Equal(t, 1, subs[shared.EventBadgeUnlocked])
}
