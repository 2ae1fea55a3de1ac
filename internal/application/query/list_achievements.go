package query

import (
	"context"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST BADGES / QUESTS
// Catalogue rows joined with the caller's progress.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeDTO is a badge with the caller's progress.
type BadgeDTO struct {
	ID               string     `json:"id"`
	Slug             string     `json:"slug"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Tier             string     `json:"tier"`
	RequirementType  string     `json:"requirement_type"`
	RequirementValue int        `json:"requirement_value"`
	XPReward         int        `json:"xp_reward"`
	Progress         int        `json:"progress"`
	Percent          float64    `json:"progress_percentage"`
	Unlocked         bool       `json:"is_unlocked"`
	UnlockedAt       *time.Time `json:"unlocked_at,omitempty"`
}

// ListBadgesQuery filters badges.
type ListBadgesQuery struct {
	UserID shared.UserID
	Filter gamification.BadgeFilter
}

// ListBadgesHandler handles ListBadgesQuery.
type ListBadgesHandler struct {
	reader gamification.Reader
}

// NewListBadgesHandler creates a new ListBadgesHandler.
func NewListBadgesHandler(reader gamification.Reader) *ListBadgesHandler {
	return &ListBadgesHandler{reader: reader}
}

// Handle executes the query.
func (h *ListBadgesHandler) Handle(ctx context.Context, q ListBadgesQuery) ([]BadgeDTO, error) {
	views, err := h.reader.ListBadges(ctx, q.UserID, q.Filter)
	if err != nil {
		return nil, err
	}

	out := make([]BadgeDTO, 0, len(views))
	for _, v := range views {
		b, p := v.Badge, v.Progress
		dto := BadgeDTO{
			ID:               b.ID,
			Slug:             b.Slug,
			Name:             b.Name,
			Description:      b.Description,
			Category:         b.Category,
			Tier:             string(b.Tier),
			RequirementType:  b.RequirementType.String(),
			RequirementValue: b.RequirementValue,
			XPReward:         b.XPReward,
			Progress:         min(p.Progress, b.RequirementValue),
			Percent:          p.Percent(b.RequirementValue),
			Unlocked:         p.Unlocked,
		}
		if p.Unlocked {
			at := p.UnlockedAt
			dto.UnlockedAt = &at
		}
		out = append(out, dto)
	}
	return out, nil
}

// QuestDTO is a quest with the caller's progress.
type QuestDTO struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	QuestType        string     `json:"quest_type"`
	RequirementType  string     `json:"requirement_type"`
	RequirementValue int        `json:"requirement_value"`
	XPReward         int        `json:"xp_reward"`
	Progress         int        `json:"progress"`
	Completed        bool       `json:"is_completed"`
	Claimed          bool       `json:"is_claimed"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// ListQuestsQuery filters quests.
type ListQuestsQuery struct {
	UserID shared.UserID
	Filter gamification.QuestFilter
}

// ListQuestsHandler handles ListQuestsQuery.
type ListQuestsHandler struct {
	reader gamification.Reader
	clock  timeutil.Clock
}

// NewListQuestsHandler creates a new ListQuestsHandler.
func NewListQuestsHandler(reader gamification.Reader, clock timeutil.Clock) *ListQuestsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &ListQuestsHandler{reader: reader, clock: clock}
}

// Handle executes the query.
func (h *ListQuestsHandler) Handle(ctx context.Context, q ListQuestsQuery) ([]QuestDTO, error) {
	if q.Filter.QuestType != "" && !q.Filter.QuestType.IsValid() {
		return nil, shared.NewDomainError("quest", "List", shared.ErrInvalidInput, "unknown quest type")
	}

	views, err := h.reader.ListQuests(ctx, q.UserID, q.Filter, h.clock.Now())
	if err != nil {
		return nil, err
	}

	out := make([]QuestDTO, 0, len(views))
	for _, v := range views {
		qq, p := v.Quest, v.Progress
		dto := QuestDTO{
			ID:               qq.ID,
			Title:            qq.Title,
			Description:      qq.Description,
			QuestType:        string(qq.QuestType),
			RequirementType:  qq.RequirementType.String(),
			RequirementValue: qq.RequirementValue,
			XPReward:         qq.XPReward,
			Progress:         min(p.Progress, qq.RequirementValue),
			Completed:        p.Completed,
			Claimed:          p.Claimed,
		}
		if !qq.ExpiresAt.IsZero() {
			at := qq.ExpiresAt
			dto.ExpiresAt = &at
		}
		out = append(out, dto)
	}
	return out, nil
}
