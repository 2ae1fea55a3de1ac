package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migration is one embedded schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// migrationLockKey serializes concurrent Migrate calls from the server and worker.
const migrationLockKey int64 = 0x6d656e746f72

// Migrator applies the embedded migrations in version order.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Migrate applies every pending migration, each in its own transaction.
// It returns the number of migrations applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if _, err := m.conn.Pool().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, storageErr("Migrate", err)
	}

	applied := 0
	for _, mig := range m.migrations {
		done, err := m.apply(ctx, mig)
		if err != nil {
			return applied, fmt.Errorf("%w: %03d_%s: %w", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		if done {
			applied++
		}
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) (bool, error) {
	done := false
	err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, mig.Version,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}

		if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name,
		); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_ledger", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_achievements", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_collaboration", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Users and their XP balance. experience_points always equals the sum of
-- the user's xp_transactions.
CREATE TABLE IF NOT EXISTS users (
    user_id VARCHAR(64) PRIMARY KEY,
    experience_points INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    badge_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_xp CHECK (experience_points >= 0),
    CONSTRAINT valid_level CHECK (level >= 1)
);

CREATE INDEX IF NOT EXISTS idx_users_xp ON users(experience_points DESC, user_id);

CREATE TABLE IF NOT EXISTS xp_transactions (
    seq BIGSERIAL PRIMARY KEY,
    id UUID NOT NULL UNIQUE,
    user_id VARCHAR(64) NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    amount INTEGER NOT NULL,
    balance_after INTEGER NOT NULL,
    source_type VARCHAR(30) NOT NULL,
    source_id VARCHAR(100),
    description TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT nonzero_amount CHECK (amount <> 0),
    CONSTRAINT valid_source_type CHECK (source_type IN
        ('module', 'session', 'streak', 'badge', 'quest', 'manual', 'reward'))
);

CREATE INDEX IF NOT EXISTS idx_xp_transactions_user ON xp_transactions(user_id, seq DESC);

CREATE TABLE IF NOT EXISTS user_streaks (
    user_id VARCHAR(64) PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_activity_date DATE,
    streak_frozen_until DATE,
    milestones_reached INTEGER[] NOT NULL DEFAULT '{}',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_streaks_active ON user_streaks(last_activity_date) WHERE current_streak > 0;
`

const migration001Down = `
DROP TABLE IF EXISTS user_streaks;
DROP TABLE IF EXISTS xp_transactions;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: BADGES, QUESTS, REWARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS badges (
    id VARCHAR(64) PRIMARY KEY,
    slug VARCHAR(64) NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(50) NOT NULL DEFAULT '',
    tier VARCHAR(20) NOT NULL DEFAULT 'bronze',
    requirement_type VARCHAR(50) NOT NULL,
    requirement_value INTEGER NOT NULL,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_badge_requirement CHECK (requirement_value > 0)
);

CREATE INDEX IF NOT EXISTS idx_badges_requirement ON badges(requirement_type) WHERE is_active;

CREATE TABLE IF NOT EXISTS user_badges (
    user_id VARCHAR(64) NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    badge_id VARCHAR(64) NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
    progress INTEGER NOT NULL DEFAULT 0,
    is_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
    unlocked_at TIMESTAMP WITH TIME ZONE,
    PRIMARY KEY (user_id, badge_id)
);

CREATE TABLE IF NOT EXISTS quests (
    id VARCHAR(64) PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    quest_type VARCHAR(20) NOT NULL,
    requirement_type VARCHAR(50) NOT NULL,
    requirement_value INTEGER NOT NULL,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    expires_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_quest_type CHECK (quest_type IN ('daily', 'weekly', 'special', 'achievement')),
    CONSTRAINT valid_quest_requirement CHECK (requirement_value > 0)
);

CREATE TABLE IF NOT EXISTS user_quests (
    user_id VARCHAR(64) NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    quest_id VARCHAR(64) NOT NULL REFERENCES quests(id) ON DELETE CASCADE,
    progress INTEGER NOT NULL DEFAULT 0,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMP WITH TIME ZONE,
    is_claimed BOOLEAN NOT NULL DEFAULT FALSE,
    claimed_at TIMESTAMP WITH TIME ZONE,
    PRIMARY KEY (user_id, quest_id),

    CONSTRAINT claimed_requires_completed CHECK (NOT is_claimed OR is_completed)
);

CREATE TABLE IF NOT EXISTS rewards (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    reward_type VARCHAR(50) NOT NULL,
    xp_cost INTEGER NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_xp_cost CHECK (xp_cost > 0)
);

CREATE TABLE IF NOT EXISTS user_rewards (
    user_id VARCHAR(64) NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    reward_id VARCHAR(64) NOT NULL REFERENCES rewards(id) ON DELETE CASCADE,
    xp_spent INTEGER NOT NULL,
    claimed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, reward_id)
);
`

const migration002Down = `
DROP TABLE IF EXISTS user_rewards;
DROP TABLE IF EXISTS rewards;
DROP TABLE IF EXISTS user_quests;
DROP TABLE IF EXISTS quests;
DROP TABLE IF EXISTS user_badges;
DROP TABLE IF EXISTS badges;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: COLLABORATION
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS mentorship_sessions (
    id VARCHAR(64) PRIMARY KEY,
    mentor_id VARCHAR(64) NOT NULL,
    mentee_id VARCHAR(64) NOT NULL,
    classroom_link TEXT NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_session_status CHECK (status IN
        ('scheduled', 'in_progress', 'completed', 'cancelled', 'missed'))
);

CREATE INDEX IF NOT EXISTS idx_mentorship_sessions_mentor ON mentorship_sessions(mentor_id);
CREATE INDEX IF NOT EXISTS idx_mentorship_sessions_mentee ON mentorship_sessions(mentee_id);

CREATE TABLE IF NOT EXISTS collaborative_sessions (
    session_id VARCHAR(64) PRIMARY KEY REFERENCES mentorship_sessions(id) ON DELETE CASCADE,
    code TEXT NOT NULL DEFAULT '',
    language VARCHAR(30) NOT NULL DEFAULT 'python',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS collaborative_sessions;
DROP TABLE IF EXISTS mentorship_sessions;
`
