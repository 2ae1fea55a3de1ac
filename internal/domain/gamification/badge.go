package gamification

import (
	"math"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENT KINDS
// ══════════════════════════════════════════════════════════════════════════════

// RequirementKind names the event type a badge or quest counts.
type RequirementKind string

// Known requirement kinds.
const (
	RequirementModulesCompleted RequirementKind = "modules_completed"
	RequirementSessionsAttended RequirementKind = "sessions_attended"
	RequirementStreakDays       RequirementKind = "streak_days"
	RequirementCodeSubmissions  RequirementKind = "code_submissions"
	RequirementMentorRating     RequirementKind = "mentor_rating"
)

// String returns the string representation.
func (k RequirementKind) String() string {
	return string(k)
}

// MaxEventCount bounds the count carried by one reported event.
const MaxEventCount = 100

// IsReportable reports whether callers may count the kind through
// record_event. streak_days progress follows recorded activity only.
func (k RequirementKind) IsReportable() bool {
	switch k {
	case RequirementModulesCompleted, RequirementSessionsAttended,
		RequirementCodeSubmissions, RequirementMentorRating:
		return true
	}
	return false
}

// addProgress adds count to progress, saturating at math.MaxInt32.
// Non-positive counts leave progress unchanged.
func addProgress(progress, count int) int {
	if count <= 0 {
		return progress
	}
	if progress > math.MaxInt32-count {
		return math.MaxInt32
	}
	return progress + count
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// BadgeTier is the display tier of a badge.
type BadgeTier string

const (
	TierBronze   BadgeTier = "bronze"
	TierSilver   BadgeTier = "silver"
	TierGold     BadgeTier = "gold"
	TierPlatinum BadgeTier = "platinum"
)

// Badge is a catalogue entry.
type Badge struct {
	ID               string
	Slug             string
	Name             string
	Description      string
	Category         string
	Tier             BadgeTier
	RequirementType  RequirementKind
	RequirementValue int
	XPReward         int
	Active           bool
}

// BadgeProgress is one user's progress toward one badge.
type BadgeProgress struct {
	UserID     shared.UserID
	BadgeID    string
	Progress   int
	Unlocked   bool
	UnlockedAt time.Time
}

// NewBadgeProgress creates empty progress.
func NewBadgeProgress(userID shared.UserID, badgeID string) *BadgeProgress {
	return &BadgeProgress{UserID: userID, BadgeID: badgeID}
}

// Advance adds count toward requirement. It returns true only on the call
// that unlocks the badge; an unlocked badge never advances again.
func (p *BadgeProgress) Advance(count, requirement int, now time.Time) bool {
	if p.Unlocked || count <= 0 {
		return false
	}
	p.Progress = addProgress(p.Progress, count)
	if p.Progress >= requirement {
		p.Unlocked = true
		p.UnlockedAt = now
		return true
	}
	return false
}

// Percent returns progress toward requirement, clamped to [0,100].
func (p *BadgeProgress) Percent(requirement int) float64 {
	if p.Unlocked || requirement <= 0 {
		return 100
	}
	return clampPercent(float64(p.Progress) / float64(requirement) * 100)
}

// BadgeView joins a catalogue badge with the caller's progress.
type BadgeView struct {
	Badge    Badge
	Progress BadgeProgress
}

// BadgeFilter narrows badge listings.
type BadgeFilter struct {
	UnlockedOnly bool
	Category     string
}
