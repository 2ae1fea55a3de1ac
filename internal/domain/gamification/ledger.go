package gamification

import (
	"math"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP SOURCES
// ══════════════════════════════════════════════════════════════════════════════

// MaxXP is the largest balance an account can hold; storage columns are 32-bit.
const MaxXP = math.MaxInt32

// SourceKind tags where an XP transaction came from.
type SourceKind string

const (
	SourceModule  SourceKind = "module"
	SourceSession SourceKind = "session"
	SourceBadge   SourceKind = "badge"
	SourceQuest   SourceKind = "quest"
	SourceManual  SourceKind = "manual"
	// SourceReward and SourceStreak are spends (negative amounts).
	SourceReward SourceKind = "reward"
	SourceStreak SourceKind = "streak"
)

// IsValid reports whether k is a known source kind.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceModule, SourceSession, SourceBadge, SourceQuest, SourceManual, SourceReward, SourceStreak:
		return true
	}
	return false
}

// String returns the string representation.
func (k SourceKind) String() string {
	return string(k)
}

// ParseSourceKind validates a source kind string.
func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(s)
	if !k.IsValid() {
		return "", shared.ErrInvalidSourceKind
	}
	return k, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Transaction is one immutable XP ledger row.
type Transaction struct {
	ID           string
	UserID       shared.UserID
	Amount       int
	BalanceAfter int
	SourceKind   SourceKind
	SourceID     string
	Description  string
	CreatedAt    time.Time
}

// Account is a user's gamification state: XP balance, cached level and
// unlocked badge count.
type Account struct {
	UserID     shared.UserID
	XP         int
	Level      int
	BadgeCount int
	UpdatedAt  time.Time
}

// NewAccount creates a zero-XP account at level 1.
func NewAccount(userID shared.UserID) *Account {
	return &Account{UserID: userID, XP: 0, Level: 1}
}

// AwardOutcome is the result of applying a transaction to an account.
type AwardOutcome struct {
	Transaction Transaction
	OldLevel    int
	NewLevel    int
	NewTotal    int
}

// LeveledUp reports whether the award crossed at least one threshold.
func (o AwardOutcome) LeveledUp() bool {
	return o.NewLevel > o.OldLevel
}

// Apply adds amount to the account and returns the ledger row to persist.
// A zero amount is rejected. Negative amounts are spends and must not take
// the balance below zero.
func (a *Account) Apply(id string, amount int, kind SourceKind, sourceID, description string, thresholds Thresholds, now time.Time) (AwardOutcome, error) {
	if amount == 0 {
		return AwardOutcome{}, shared.ErrZeroAmount
	}
	if !kind.IsValid() {
		return AwardOutcome{}, shared.ErrInvalidSourceKind
	}
	if a.XP+amount < 0 {
		return AwardOutcome{}, shared.ErrInsufficientXP
	}
	if amount > 0 && a.XP > MaxXP-amount {
		return AwardOutcome{}, shared.ErrXPLimitExceeded
	}

	oldLevel := LevelFor(a.XP, thresholds)
	a.XP += amount
	a.Level = LevelFor(a.XP, thresholds)
	a.UpdatedAt = now

	tx := Transaction{
		ID:           id,
		UserID:       a.UserID,
		Amount:       amount,
		BalanceAfter: a.XP,
		SourceKind:   kind,
		SourceID:     sourceID,
		Description:  description,
		CreatedAt:    now,
	}
	return AwardOutcome{
		Transaction: tx,
		OldLevel:    oldLevel,
		NewLevel:    a.Level,
		NewTotal:    a.XP,
	}, nil
}
