package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements gamification.Store and gamification.Catalog.
//
// A unit of work is one READ COMMITTED transaction that starts by locking the
// user's row with SELECT ... FOR UPDATE. Every write of that user goes
// through the same lock, so units of work for one user serialize while
// different users proceed in parallel.
type Store struct {
	conn *Connection
	now  func() time.Time
}

var (
	_ gamification.Store   = (*Store)(nil)
	_ gamification.Catalog = (*Store)(nil)
)

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

// WithinUser implements gamification.Store.
func (s *Store) WithinUser(ctx context.Context, userID shared.UserID, fn func(ctx context.Context, tx gamification.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		acc, err := scanAccount(tx.QueryRow(ctx, `
			SELECT user_id, experience_points, level, badge_count, updated_at
			FROM users WHERE user_id = $1
			FOR UPDATE
		`, userID.String()))
		if IsNoRows(err) {
			return shared.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		return fn(ctx, &pgTx{tx: tx, userID: userID, account: acc, now: s.now})
	})
	return storageErr("WithinUser", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type pgTx struct {
	tx      pgx.Tx
	userID  shared.UserID
	account *gamification.Account
	now     func() time.Time
}

func (t *pgTx) UserID() shared.UserID { return t.userID }

func (t *pgTx) Account(ctx context.Context) (*gamification.Account, error) {
	c := *t.account
	return &c, nil
}

func (t *pgTx) SaveAccount(ctx context.Context, a *gamification.Account) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE users
		SET experience_points = $2, level = $3, badge_count = $4, updated_at = $5
		WHERE user_id = $1
	`, t.userID.String(), a.XP, a.Level, a.BadgeCount, t.now())
	if err != nil {
		return err
	}
	c := *a
	t.account = &c
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *gamification.Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO xp_transactions (id, user_id, amount, balance_after, source_type, source_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`, tr.ID, t.userID.String(), tr.Amount, tr.BalanceAfter, tr.SourceKind.String(), tr.SourceID, tr.Description, tr.CreatedAt)
	return err
}

func (t *pgTx) Streak(ctx context.Context) (*gamification.Streak, error) {
	st, err := scanStreak(t.tx.QueryRow(ctx, selectStreak+` WHERE user_id = $1`, t.userID.String()))
	if IsNoRows(err) {
		return nil, nil
	}
	return st, err
}

func (t *pgTx) SaveStreak(ctx context.Context, s *gamification.Streak) error {
	milestones := make([]int32, len(s.Milestones))
	for i, m := range s.Milestones {
		milestones[i] = int32(m)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_streaks (user_id, current_streak, longest_streak, last_activity_date, streak_frozen_until, milestones_reached, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_activity_date = EXCLUDED.last_activity_date,
			streak_frozen_until = EXCLUDED.streak_frozen_until,
			milestones_reached = EXCLUDED.milestones_reached,
			updated_at = EXCLUDED.updated_at
	`, t.userID.String(), s.Current, s.Longest, nullDate(s.LastActivity), nullDate(s.FrozenUntil), milestones, t.now())
	return err
}

func (t *pgTx) OpenBadges(ctx context.Context, kind gamification.RequirementKind) ([]gamification.BadgeView, error) {
	rows, err := t.tx.Query(ctx, selectBadgeViews+`
		WHERE b.is_active AND b.requirement_type = $2 AND NOT COALESCE(ub.is_unlocked, FALSE)
		ORDER BY b.id
	`, t.userID.String(), string(kind))
	if err != nil {
		return nil, err
	}
	return collectBadgeViews(rows, t.userID)
}

func (t *pgTx) SaveBadgeProgress(ctx context.Context, p *gamification.BadgeProgress) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_id, progress, is_unlocked, unlocked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, badge_id) DO UPDATE SET
			progress = EXCLUDED.progress,
			is_unlocked = EXCLUDED.is_unlocked,
			unlocked_at = EXCLUDED.unlocked_at
	`, t.userID.String(), p.BadgeID, p.Progress, p.Unlocked, nullTime(p.UnlockedAt))
	return err
}

func (t *pgTx) OpenQuests(ctx context.Context, kind gamification.RequirementKind, now time.Time) ([]gamification.QuestView, error) {
	rows, err := t.tx.Query(ctx, selectQuestViews+`
		WHERE q.is_active AND q.requirement_type = $2
		  AND (q.expires_at IS NULL OR q.expires_at > $3)
		  AND NOT COALESCE(uq.is_completed, FALSE)
		ORDER BY q.id
	`, t.userID.String(), string(kind), now)
	if err != nil {
		return nil, err
	}
	return collectQuestViews(rows, t.userID)
}

func (t *pgTx) Quest(ctx context.Context, questID string) (*gamification.Quest, error) {
	q, err := scanQuest(t.tx.QueryRow(ctx, selectQuest+` WHERE id = $1`, questID))
	if IsNoRows(err) {
		return nil, shared.ErrQuestNotFound
	}
	return q, err
}

func (t *pgTx) QuestProgress(ctx context.Context, questID string) (*gamification.QuestProgress, error) {
	p := gamification.NewQuestProgress(t.userID, questID)
	var completedAt, claimedAt *time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT progress, is_completed, completed_at, is_claimed, claimed_at
		FROM user_quests WHERE user_id = $1 AND quest_id = $2
	`, t.userID.String(), questID).Scan(&p.Progress, &p.Completed, &completedAt, &p.Claimed, &claimedAt)
	if IsNoRows(err) {
		return nil, shared.ErrQuestNotStarted
	}
	if err != nil {
		return nil, err
	}
	p.CompletedAt = derefTime(completedAt)
	p.ClaimedAt = derefTime(claimedAt)
	return p, nil
}

func (t *pgTx) SaveQuestProgress(ctx context.Context, p *gamification.QuestProgress) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_quests (user_id, quest_id, progress, is_completed, completed_at, is_claimed, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, quest_id) DO UPDATE SET
			progress = EXCLUDED.progress,
			is_completed = EXCLUDED.is_completed,
			completed_at = EXCLUDED.completed_at,
			is_claimed = EXCLUDED.is_claimed,
			claimed_at = EXCLUDED.claimed_at
	`, t.userID.String(), p.QuestID, p.Progress, p.Completed, nullTime(p.CompletedAt), p.Claimed, nullTime(p.ClaimedAt))
	return err
}

func (t *pgTx) Reward(ctx context.Context, rewardID string) (*gamification.Reward, error) {
	r := &gamification.Reward{}
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, reward_type, xp_cost, is_active
		FROM rewards WHERE id = $1 AND is_active
	`, rewardID).Scan(&r.ID, &r.Name, &r.RewardType, &r.XPCost, &r.Active)
	if IsNoRows(err) {
		return nil, shared.ErrRewardNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (t *pgTx) RewardClaimed(ctx context.Context, rewardID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_rewards WHERE user_id = $1 AND reward_id = $2)
	`, t.userID.String(), rewardID).Scan(&exists)
	return exists, err
}

func (t *pgTx) SaveRewardClaim(ctx context.Context, c *gamification.RewardClaim) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_rewards (user_id, reward_id, xp_spent, claimed_at)
		VALUES ($1, $2, $3, $4)
	`, t.userID.String(), c.RewardID, c.XPSpent, c.ClaimedAt)
	if IsUniqueViolation(err) {
		return shared.ErrRewardAlreadyClaimed
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// EnsureAccount implements gamification.Reader.
func (s *Store) EnsureAccount(ctx context.Context, userID shared.UserID) error {
	_, err := s.conn.Pool().Exec(ctx, `
		INSERT INTO users (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID.String())
	return storageErr("EnsureAccount", err)
}

// GetAccount implements gamification.Reader.
func (s *Store) GetAccount(ctx context.Context, userID shared.UserID) (*gamification.Account, error) {
	acc, err := scanAccount(s.conn.Pool().QueryRow(ctx, `
		SELECT user_id, experience_points, level, badge_count, updated_at
		FROM users WHERE user_id = $1
	`, userID.String()))
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	return acc, storageErr("GetAccount", err)
}

// GetStreak implements gamification.Reader.
func (s *Store) GetStreak(ctx context.Context, userID shared.UserID) (*gamification.Streak, error) {
	st, err := scanStreak(s.conn.Pool().QueryRow(ctx, selectStreak+` WHERE user_id = $1`, userID.String()))
	if IsNoRows(err) {
		return nil, nil
	}
	return st, storageErr("GetStreak", err)
}

// ListTransactions implements gamification.Reader. Newest first.
func (s *Store) ListTransactions(ctx context.Context, userID shared.UserID, page shared.Pagination) ([]gamification.Transaction, error) {
	rows, err := s.conn.Pool().Query(ctx, `
		SELECT id::text, user_id, amount, balance_after, source_type,
		       COALESCE(source_id, ''), COALESCE(description, ''), created_at
		FROM xp_transactions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, userID.String(), page.Limit(), page.Offset())
	if err != nil {
		return nil, storageErr("ListTransactions", err)
	}

	txns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (gamification.Transaction, error) {
		var t gamification.Transaction
		var uid, kind string
		err := row.Scan(&t.ID, &uid, &t.Amount, &t.BalanceAfter, &kind, &t.SourceID, &t.Description, &t.CreatedAt)
		t.UserID = shared.UserID(uid)
		t.SourceKind = gamification.SourceKind(kind)
		return t, err
	})
	return txns, storageErr("ListTransactions", err)
}

// ListBadges implements gamification.Reader.
func (s *Store) ListBadges(ctx context.Context, userID shared.UserID, filter gamification.BadgeFilter) ([]gamification.BadgeView, error) {
	rows, err := s.conn.Pool().Query(ctx, selectBadgeViews+`
		WHERE b.is_active
		  AND ($2::text = '' OR b.category = $2::text)
		  AND (NOT $3::boolean OR COALESCE(ub.is_unlocked, FALSE))
		ORDER BY b.id
	`, userID.String(), filter.Category, filter.UnlockedOnly)
	if err != nil {
		return nil, storageErr("ListBadges", err)
	}
	views, err := collectBadgeViews(rows, userID)
	return views, storageErr("ListBadges", err)
}

// ListQuests implements gamification.Reader.
func (s *Store) ListQuests(ctx context.Context, userID shared.UserID, filter gamification.QuestFilter, now time.Time) ([]gamification.QuestView, error) {
	rows, err := s.conn.Pool().Query(ctx, selectQuestViews+`
		WHERE ($2::text = '' OR q.quest_type = $2::text)
		  AND (NOT $3::boolean OR (q.is_active AND (q.expires_at IS NULL OR q.expires_at > $4)))
		ORDER BY q.id
	`, userID.String(), string(filter.QuestType), filter.ActiveOnly, now)
	if err != nil {
		return nil, storageErr("ListQuests", err)
	}
	views, err := collectQuestViews(rows, userID)
	return views, storageErr("ListQuests", err)
}

// TopAccounts implements gamification.Reader.
func (s *Store) TopAccounts(ctx context.Context, limit int) ([]gamification.Account, error) {
	rows, err := s.conn.Pool().Query(ctx, `
		SELECT user_id, experience_points, level, badge_count, updated_at
		FROM users
		ORDER BY experience_points DESC, user_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, storageErr("TopAccounts", err)
	}
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (gamification.Account, error) {
		a, err := scanAccount(row)
		if err != nil {
			return gamification.Account{}, err
		}
		return *a, nil
	})
	return accounts, storageErr("TopAccounts", err)
}

// RankOf implements gamification.Reader and leaderboard.Source.
func (s *Store) RankOf(ctx context.Context, userID shared.UserID) (shared.Rank, error) {
	var rank int
	err := s.conn.Pool().QueryRow(ctx, `
		SELECT 1 + (SELECT count(*) FROM users o WHERE o.experience_points > u.experience_points)
		FROM users u WHERE u.user_id = $1
	`, userID.String()).Scan(&rank)
	if IsNoRows(err) {
		return shared.Unranked, shared.ErrUserNotFound
	}
	if err != nil {
		return shared.Unranked, storageErr("RankOf", err)
	}
	return shared.Rank(rank), nil
}

// ActiveStreaks implements gamification.Reader.
func (s *Store) ActiveStreaks(ctx context.Context) ([]gamification.Streak, error) {
	rows, err := s.conn.Pool().Query(ctx, selectStreak+` WHERE current_streak > 0 ORDER BY user_id`)
	if err != nil {
		return nil, storageErr("ActiveStreaks", err)
	}
	streaks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (gamification.Streak, error) {
		st, err := scanStreak(row)
		if err != nil {
			return gamification.Streak{}, err
		}
		return *st, nil
	})
	return streaks, storageErr("ActiveStreaks", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// UpsertBadge implements gamification.Catalog.
func (s *Store) UpsertBadge(ctx context.Context, b *gamification.Badge) error {
	_, err := s.conn.Pool().Exec(ctx, `
		INSERT INTO badges (id, slug, name, description, category, tier, requirement_type, requirement_value, xp_reward, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			tier = EXCLUDED.tier,
			requirement_type = EXCLUDED.requirement_type,
			requirement_value = EXCLUDED.requirement_value,
			xp_reward = EXCLUDED.xp_reward,
			is_active = EXCLUDED.is_active
	`, b.ID, b.Slug, b.Name, b.Description, b.Category, string(b.Tier), string(b.RequirementType), b.RequirementValue, b.XPReward, b.Active)
	return storageErr("UpsertBadge", err)
}

// UpsertQuest implements gamification.Catalog.
func (s *Store) UpsertQuest(ctx context.Context, q *gamification.Quest) error {
	_, err := s.conn.Pool().Exec(ctx, `
		INSERT INTO quests (id, title, description, quest_type, requirement_type, requirement_value, xp_reward, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			quest_type = EXCLUDED.quest_type,
			requirement_type = EXCLUDED.requirement_type,
			requirement_value = EXCLUDED.requirement_value,
			xp_reward = EXCLUDED.xp_reward,
			is_active = EXCLUDED.is_active,
			expires_at = EXCLUDED.expires_at
	`, q.ID, q.Title, q.Description, string(q.QuestType), string(q.RequirementType), q.RequirementValue, q.XPReward, q.Active, nullTime(q.ExpiresAt))
	return storageErr("UpsertQuest", err)
}

// UpsertReward implements gamification.Catalog.
func (s *Store) UpsertReward(ctx context.Context, r *gamification.Reward) error {
	_, err := s.conn.Pool().Exec(ctx, `
		INSERT INTO rewards (id, name, reward_type, xp_cost, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			reward_type = EXCLUDED.reward_type,
			xp_cost = EXCLUDED.xp_cost,
			is_active = EXCLUDED.is_active
	`, r.ID, r.Name, r.RewardType, r.XPCost, r.Active)
	return storageErr("UpsertReward", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCANNING
// ══════════════════════════════════════════════════════════════════════════════

const selectStreak = `
	SELECT user_id, current_streak, longest_streak, last_activity_date, streak_frozen_until, milestones_reached
	FROM user_streaks`

const selectQuest = `
	SELECT id, title, description, quest_type, requirement_type, requirement_value, xp_reward, is_active, expires_at
	FROM quests`

const selectBadgeViews = `
	SELECT b.id, b.slug, b.name, b.description, b.category, b.tier, b.requirement_type,
	       b.requirement_value, b.xp_reward, b.is_active,
	       COALESCE(ub.progress, 0), COALESCE(ub.is_unlocked, FALSE), ub.unlocked_at
	FROM badges b
	LEFT JOIN user_badges ub ON ub.badge_id = b.id AND ub.user_id = $1`

const selectQuestViews = `
	SELECT q.id, q.title, q.description, q.quest_type, q.requirement_type, q.requirement_value,
	       q.xp_reward, q.is_active, q.expires_at,
	       COALESCE(uq.progress, 0), COALESCE(uq.is_completed, FALSE), uq.completed_at,
	       COALESCE(uq.is_claimed, FALSE), uq.claimed_at
	FROM quests q
	LEFT JOIN user_quests uq ON uq.quest_id = q.id AND uq.user_id = $1`

func scanAccount(row pgx.Row) (*gamification.Account, error) {
	var a gamification.Account
	var uid string
	if err := row.Scan(&uid, &a.XP, &a.Level, &a.BadgeCount, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.UserID = shared.UserID(uid)
	return &a, nil
}

func scanStreak(row pgx.Row) (*gamification.Streak, error) {
	var s gamification.Streak
	var uid string
	var last, frozen *time.Time
	var milestones []int32
	if err := row.Scan(&uid, &s.Current, &s.Longest, &last, &frozen, &milestones); err != nil {
		return nil, err
	}
	s.UserID = shared.UserID(uid)
	s.LastActivity = derefTime(last)
	s.FrozenUntil = derefTime(frozen)
	for _, m := range milestones {
		s.Milestones = append(s.Milestones, int(m))
	}
	return &s, nil
}

func scanQuest(row pgx.Row) (*gamification.Quest, error) {
	var q gamification.Quest
	var qt, rt string
	var expires *time.Time
	if err := row.Scan(&q.ID, &q.Title, &q.Description, &qt, &rt, &q.RequirementValue, &q.XPReward, &q.Active, &expires); err != nil {
		return nil, err
	}
	q.QuestType = gamification.QuestType(qt)
	q.RequirementType = gamification.RequirementKind(rt)
	q.ExpiresAt = derefTime(expires)
	return &q, nil
}

func collectBadgeViews(rows pgx.Rows, userID shared.UserID) ([]gamification.BadgeView, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (gamification.BadgeView, error) {
		var v gamification.BadgeView
		var tier, rt string
		var unlockedAt *time.Time
		err := row.Scan(
			&v.Badge.ID, &v.Badge.Slug, &v.Badge.Name, &v.Badge.Description, &v.Badge.Category,
			&tier, &rt, &v.Badge.RequirementValue, &v.Badge.XPReward, &v.Badge.Active,
			&v.Progress.Progress, &v.Progress.Unlocked, &unlockedAt,
		)
		v.Badge.Tier = gamification.BadgeTier(tier)
		v.Badge.RequirementType = gamification.RequirementKind(rt)
		v.Progress.UserID = userID
		v.Progress.BadgeID = v.Badge.ID
		v.Progress.UnlockedAt = derefTime(unlockedAt)
		return v, err
	})
}

func collectQuestViews(rows pgx.Rows, userID shared.UserID) ([]gamification.QuestView, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (gamification.QuestView, error) {
		var v gamification.QuestView
		var qt, rt string
		var expires, completedAt, claimedAt *time.Time
		err := row.Scan(
			&v.Quest.ID, &v.Quest.Title, &v.Quest.Description, &qt, &rt, &v.Quest.RequirementValue,
			&v.Quest.XPReward, &v.Quest.Active, &expires,
			&v.Progress.Progress, &v.Progress.Completed, &completedAt,
			&v.Progress.Claimed, &claimedAt,
		)
		v.Quest.QuestType = gamification.QuestType(qt)
		v.Quest.RequirementType = gamification.RequirementKind(rt)
		v.Quest.ExpiresAt = derefTime(expires)
		v.Progress.UserID = userID
		v.Progress.QuestID = v.Quest.ID
		v.Progress.CompletedAt = derefTime(completedAt)
		v.Progress.ClaimedAt = derefTime(claimedAt)
		return v, err
	})
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// nullDate stores the calendar day only.
func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
