package gamification

import (
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// QuestType groups quests by cadence.
type QuestType string

const (
	QuestDaily       QuestType = "daily"
	QuestWeekly      QuestType = "weekly"
	QuestSpecial     QuestType = "special"
	QuestAchievement QuestType = "achievement"
)

// IsValid reports whether t is a known quest type.
func (t QuestType) IsValid() bool {
	switch t {
	case QuestDaily, QuestWeekly, QuestSpecial, QuestAchievement:
		return true
	}
	return false
}

// Quest is a catalogue entry.
type Quest struct {
	ID               string
	Title            string
	Description      string
	QuestType        QuestType
	RequirementType  RequirementKind
	RequirementValue int
	XPReward         int
	Active           bool
	// ExpiresAt zero means never.
	ExpiresAt time.Time
}

// IsOpen reports whether the quest still accepts progress at now.
func (q *Quest) IsOpen(now time.Time) bool {
	return q.Active && (q.ExpiresAt.IsZero() || now.Before(q.ExpiresAt))
}

// QuestProgress is one user's progress on one quest.
type QuestProgress struct {
	UserID      shared.UserID
	QuestID     string
	Progress    int
	Completed   bool
	CompletedAt time.Time
	Claimed     bool
	ClaimedAt   time.Time
}

// NewQuestProgress creates empty progress.
func NewQuestProgress(userID shared.UserID, questID string) *QuestProgress {
	return &QuestProgress{UserID: userID, QuestID: questID}
}

// Advance adds count toward requirement and returns true on the call that
// completes the quest. Completion does not award XP.
func (p *QuestProgress) Advance(count, requirement int, now time.Time) bool {
	if p.Completed || count <= 0 {
		return false
	}
	p.Progress = addProgress(p.Progress, count)
	if p.Progress >= requirement {
		p.Completed = true
		p.CompletedAt = now
		return true
	}
	return false
}

// Claim marks the reward as taken. Callers award XP in the same unit of work.
func (p *QuestProgress) Claim(now time.Time) error {
	if !p.Completed {
		return shared.ErrQuestNotCompleted
	}
	if p.Claimed {
		return shared.ErrQuestAlreadyClaimed
	}
	p.Claimed = true
	p.ClaimedAt = now
	return nil
}

// QuestView joins a quest with the caller's progress.
type QuestView struct {
	Quest    Quest
	Progress QuestProgress
}

// QuestFilter narrows quest listings.
type QuestFilter struct {
	QuestType  QuestType
	ActiveOnly bool
}
