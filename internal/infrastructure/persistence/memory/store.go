// Package memory provides in-process implementations of the gamification,
// leaderboard and collaboration repositories. It is used by tests and by
// the server when no DATABASE_URL is configured.
//
// Units of work are serialised per user with a keyed mutex. Writes made
// inside a unit of work are staged on the transaction and applied to the
// shared maps only when the callback returns nil.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/collab"
	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

type progressKey struct {
	user shared.UserID
	id   string
}

// Store is an in-memory gamification.Store.
type Store struct {
	locks keyedMutex

	mu            sync.RWMutex
	accounts      map[shared.UserID]*gamification.Account
	transactions  map[shared.UserID][]gamification.Transaction
	streaks       map[shared.UserID]*gamification.Streak
	badges        map[string]*gamification.Badge
	badgeProgress map[progressKey]*gamification.BadgeProgress
	quests        map[string]*gamification.Quest
	questProgress map[progressKey]*gamification.QuestProgress
	rewards       map[string]*gamification.Reward
	rewardClaims  map[progressKey]*gamification.RewardClaim

	mentorships map[shared.SessionID]*collab.Mentorship
	states      map[shared.SessionID]*collab.State

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		locks:         keyedMutex{m: make(map[string]*keyedEntry)},
		accounts:      make(map[shared.UserID]*gamification.Account),
		transactions:  make(map[shared.UserID][]gamification.Transaction),
		streaks:       make(map[shared.UserID]*gamification.Streak),
		badges:        make(map[string]*gamification.Badge),
		badgeProgress: make(map[progressKey]*gamification.BadgeProgress),
		quests:        make(map[string]*gamification.Quest),
		questProgress: make(map[progressKey]*gamification.QuestProgress),
		rewards:       make(map[string]*gamification.Reward),
		rewardClaims:  make(map[progressKey]*gamification.RewardClaim),
		mentorships:   make(map[shared.SessionID]*collab.Mentorship),
		states:        make(map[shared.SessionID]*collab.State),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// WithinUser implements gamification.Store.
func (s *Store) WithinUser(ctx context.Context, userID shared.UserID, fn func(ctx context.Context, tx gamification.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(string(userID))
	defer unlock()

	s.mu.RLock()
	acc, ok := s.accounts[userID]
	var accCopy gamification.Account
	if ok {
		accCopy = *acc
	}
	s.mu.RUnlock()
	if !ok {
		return shared.ErrUserNotFound
	}

	tx := &memTx{
		store:         s,
		userID:        userID,
		account:       &accCopy,
		badgeProgress: make(map[string]*gamification.BadgeProgress),
		questProgress: make(map[string]*gamification.QuestProgress),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.accountDirty {
		a := *tx.account
		s.accounts[tx.userID] = &a
	}
	s.transactions[tx.userID] = append(s.transactions[tx.userID], tx.txns...)
	if tx.streakDirty {
		s.streaks[tx.userID] = cloneStreak(tx.streak)
	}
	for id, p := range tx.badgeProgress {
		c := *p
		s.badgeProgress[progressKey{tx.userID, id}] = &c
	}
	for id, p := range tx.questProgress {
		c := *p
		s.questProgress[progressKey{tx.userID, id}] = &c
	}
	for _, c := range tx.rewardClaims {
		cc := *c
		s.rewardClaims[progressKey{tx.userID, c.RewardID}] = &cc
	}
}

type memTx struct {
	store  *Store
	userID shared.UserID

	account      *gamification.Account
	accountDirty bool
	txns         []gamification.Transaction

	streak       *gamification.Streak
	streakLoaded bool
	streakDirty  bool

	badgeProgress map[string]*gamification.BadgeProgress
	questProgress map[string]*gamification.QuestProgress
	rewardClaims  []*gamification.RewardClaim
}

func (t *memTx) UserID() shared.UserID { return t.userID }

func (t *memTx) Account(ctx context.Context) (*gamification.Account, error) {
	return t.account, nil
}

func (t *memTx) SaveAccount(ctx context.Context, a *gamification.Account) error {
	t.account = a
	t.accountDirty = true
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, tr *gamification.Transaction) error {
	t.txns = append(t.txns, *tr)
	return nil
}

func (t *memTx) Streak(ctx context.Context) (*gamification.Streak, error) {
	if !t.streakLoaded {
		t.store.mu.RLock()
		if s, ok := t.store.streaks[t.userID]; ok {
			t.streak = cloneStreak(s)
		}
		t.store.mu.RUnlock()
		t.streakLoaded = true
	}
	return t.streak, nil
}

func (t *memTx) SaveStreak(ctx context.Context, s *gamification.Streak) error {
	t.streak = s
	t.streakLoaded = true
	t.streakDirty = true
	return nil
}

func (t *memTx) OpenBadges(ctx context.Context, kind gamification.RequirementKind) ([]gamification.BadgeView, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var out []gamification.BadgeView
	for _, b := range t.store.sortedBadges() {
		if !b.Active || b.RequirementType != kind {
			continue
		}
		p := t.badgeProgressLocked(b.ID)
		if p.Unlocked {
			continue
		}
		out = append(out, gamification.BadgeView{Badge: *b, Progress: p})
	}
	return out, nil
}

// badgeProgressLocked returns staged or stored progress. Caller holds store.mu.
func (t *memTx) badgeProgressLocked(badgeID string) gamification.BadgeProgress {
	if p, ok := t.badgeProgress[badgeID]; ok {
		return *p
	}
	if p, ok := t.store.badgeProgress[progressKey{t.userID, badgeID}]; ok {
		return *p
	}
	return *gamification.NewBadgeProgress(t.userID, badgeID)
}

func (t *memTx) SaveBadgeProgress(ctx context.Context, p *gamification.BadgeProgress) error {
	c := *p
	t.badgeProgress[p.BadgeID] = &c
	return nil
}

func (t *memTx) OpenQuests(ctx context.Context, kind gamification.RequirementKind, now time.Time) ([]gamification.QuestView, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var out []gamification.QuestView
	for _, q := range t.store.sortedQuests() {
		if q.RequirementType != kind || !q.IsOpen(now) {
			continue
		}
		p := t.questProgressLocked(q.ID)
		if p != nil && p.Completed {
			continue
		}
		if p == nil {
			p = gamification.NewQuestProgress(t.userID, q.ID)
		}
		out = append(out, gamification.QuestView{Quest: *q, Progress: *p})
	}
	return out, nil
}

func (t *memTx) questProgressLocked(questID string) *gamification.QuestProgress {
	if p, ok := t.questProgress[questID]; ok {
		c := *p
		return &c
	}
	if p, ok := t.store.questProgress[progressKey{t.userID, questID}]; ok {
		c := *p
		return &c
	}
	return nil
}

func (t *memTx) Quest(ctx context.Context, questID string) (*gamification.Quest, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	q, ok := t.store.quests[questID]
	if !ok {
		return nil, shared.ErrQuestNotFound
	}
	c := *q
	return &c, nil
}

func (t *memTx) QuestProgress(ctx context.Context, questID string) (*gamification.QuestProgress, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p := t.questProgressLocked(questID)
	if p == nil {
		return nil, shared.ErrQuestNotStarted
	}
	return p, nil
}

func (t *memTx) SaveQuestProgress(ctx context.Context, p *gamification.QuestProgress) error {
	c := *p
	t.questProgress[p.QuestID] = &c
	return nil
}

func (t *memTx) Reward(ctx context.Context, rewardID string) (*gamification.Reward, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.rewards[rewardID]
	if !ok || !r.Active {
		return nil, shared.ErrRewardNotFound
	}
	c := *r
	return &c, nil
}

func (t *memTx) RewardClaimed(ctx context.Context, rewardID string) (bool, error) {
	for _, c := range t.rewardClaims {
		if c.RewardID == rewardID {
			return true, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.rewardClaims[progressKey{t.userID, rewardID}]
	return ok, nil
}

func (t *memTx) SaveRewardClaim(ctx context.Context, c *gamification.RewardClaim) error {
	cc := *c
	t.rewardClaims = append(t.rewardClaims, &cc)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// EnsureAccount implements gamification.Reader.
func (s *Store) EnsureAccount(ctx context.Context, userID shared.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; !ok {
		a := gamification.NewAccount(userID)
		a.UpdatedAt = s.now()
		s.accounts[userID] = a
	}
	return nil
}

// GetAccount implements gamification.Reader.
func (s *Store) GetAccount(ctx context.Context, userID shared.UserID) (*gamification.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[userID]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	c := *a
	return &c, nil
}

// GetStreak implements gamification.Reader.
func (s *Store) GetStreak(ctx context.Context, userID shared.UserID) (*gamification.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streaks[userID]
	if !ok {
		return nil, nil
	}
	return cloneStreak(st), nil
}

// ListTransactions implements gamification.Reader. Newest first.
func (s *Store) ListTransactions(ctx context.Context, userID shared.UserID, page shared.Pagination) ([]gamification.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.transactions[userID]
	out := make([]gamification.Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	from := min(page.Offset(), len(out))
	to := min(from+page.Limit(), len(out))
	return out[from:to], nil
}

// ListBadges implements gamification.Reader.
func (s *Store) ListBadges(ctx context.Context, userID shared.UserID, filter gamification.BadgeFilter) ([]gamification.BadgeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []gamification.BadgeView
	for _, b := range s.sortedBadges() {
		if !b.Active || (filter.Category != "" && b.Category != filter.Category) {
			continue
		}
		p := gamification.NewBadgeProgress(userID, b.ID)
		if stored, ok := s.badgeProgress[progressKey{userID, b.ID}]; ok {
			p = stored
		}
		if filter.UnlockedOnly && !p.Unlocked {
			continue
		}
		out = append(out, gamification.BadgeView{Badge: *b, Progress: *p})
	}
	return out, nil
}

// ListQuests implements gamification.Reader.
func (s *Store) ListQuests(ctx context.Context, userID shared.UserID, filter gamification.QuestFilter, now time.Time) ([]gamification.QuestView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []gamification.QuestView
	for _, q := range s.sortedQuests() {
		if filter.QuestType != "" && q.QuestType != filter.QuestType {
			continue
		}
		if filter.ActiveOnly && !q.IsOpen(now) {
			continue
		}
		p := gamification.NewQuestProgress(userID, q.ID)
		if stored, ok := s.questProgress[progressKey{userID, q.ID}]; ok {
			p = stored
		}
		out = append(out, gamification.QuestView{Quest: *q, Progress: *p})
	}
	return out, nil
}

// TopAccounts implements gamification.Reader.
func (s *Store) TopAccounts(ctx context.Context, limit int) ([]gamification.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]gamification.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RankOf implements gamification.Reader and leaderboard.Source.
func (s *Store) RankOf(ctx context.Context, userID shared.UserID) (shared.Rank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	me, ok := s.accounts[userID]
	if !ok {
		return shared.Unranked, shared.ErrUserNotFound
	}
	ahead := 0
	for _, a := range s.accounts {
		if a.XP > me.XP {
			ahead++
		}
	}
	return shared.Rank(ahead + 1), nil
}

// ActiveStreaks implements gamification.Reader.
func (s *Store) ActiveStreaks(ctx context.Context) ([]gamification.Streak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]gamification.Streak, 0, len(s.streaks))
	for _, st := range s.streaks {
		if st.Current > 0 {
			out = append(out, *cloneStreak(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// TopEntries implements leaderboard.Source.
func (s *Store) TopEntries(ctx context.Context, limit int) ([]*leaderboard.Entry, error) {
	accounts, err := s.TopAccounts(ctx, limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ranking := leaderboard.NewRanking()
	for _, a := range accounts {
		e := &leaderboard.Entry{UserID: a.UserID, XP: a.XP, Level: a.Level}
		if st, ok := s.streaks[a.UserID]; ok {
			e.CurrentStreak = st.Current
		}
		_ = ranking.Add(e)
	}
	ranking.SortByXP()
	return ranking.Top(ranking.Count()), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// UpsertBadge implements gamification.Catalog.
func (s *Store) UpsertBadge(ctx context.Context, b *gamification.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *b
	s.badges[b.ID] = &c
	return nil
}

// UpsertQuest implements gamification.Catalog.
func (s *Store) UpsertQuest(ctx context.Context, q *gamification.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *q
	s.quests[q.ID] = &c
	return nil
}

// UpsertReward implements gamification.Catalog.
func (s *Store) UpsertReward(ctx context.Context, r *gamification.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.rewards[r.ID] = &c
	return nil
}

// Caller holds s.mu.
func (s *Store) sortedBadges() []*gamification.Badge {
	out := make([]*gamification.Badge, 0, len(s.badges))
	for _, b := range s.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Caller holds s.mu.
func (s *Store) sortedQuests() []*gamification.Quest {
	out := make([]*gamification.Quest, 0, len(s.quests))
	for _, q := range s.quests {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneStreak(s *gamification.Streak) *gamification.Streak {
	if s == nil {
		return nil
	}
	c := *s
	c.Milestones = slices.Clone(s.Milestones)
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYED MUTEX
// ══════════════════════════════════════════════════════════════════════════════

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*keyedEntry
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.m[key]
	if !ok {
		e = &keyedEntry{}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
