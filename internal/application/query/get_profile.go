package query

import (
	"context"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// XP, level progress, streak and rank for one user, plus recent ledger rows.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery identifies the user.
type GetProfileQuery struct {
	UserID shared.UserID

	// HistoryLimit is the number of recent transactions to include. Zero skips them.
	HistoryLimit int
}

// LevelDTO describes level progress.
type LevelDTO struct {
	Level      int     `json:"level"`
	XPInLevel  int     `json:"xp_in_level"`
	XPForLevel int     `json:"xp_for_level"`
	XPToNext   int     `json:"xp_to_next"`
	Percent    float64 `json:"progress_percentage"`
	IsMaxLevel bool    `json:"is_max_level"`
}

// StreakDTO describes the daily streak.
type StreakDTO struct {
	Current      int    `json:"current_streak"`
	Longest      int    `json:"longest_streak"`
	LastActivity string `json:"last_activity_date,omitempty"`
	FrozenUntil  string `json:"frozen_until,omitempty"`
	Milestones   []int  `json:"milestones_reached"`
	AtRisk       bool   `json:"at_risk"`
}

// TransactionDTO is one ledger row.
type TransactionDTO struct {
	ID           string    `json:"id"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	SourceKind   string    `json:"source_type"`
	SourceID     string    `json:"source_id,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileResult is the gamification profile.
type ProfileResult struct {
	UserID     string           `json:"user_id"`
	XP         int              `json:"experience_points"`
	Level      LevelDTO         `json:"level"`
	Streak     StreakDTO        `json:"streak"`
	BadgeCount int              `json:"badge_count"`
	Rank       int              `json:"rank"`
	History    []TransactionDTO `json:"recent_transactions,omitempty"`
}

// GetProfileHandler handles GetProfileQuery.
type GetProfileHandler struct {
	reader     gamification.Reader
	thresholds gamification.Thresholds
	clock      timeutil.Clock
}

// NewGetProfileHandler creates a new GetProfileHandler.
func NewGetProfileHandler(reader gamification.Reader, thresholds gamification.Thresholds, clock timeutil.Clock) *GetProfileHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetProfileHandler{reader: reader, thresholds: thresholds, clock: clock}
}

// Handle executes the query.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*ProfileResult, error) {
	acc, err := h.reader.GetAccount(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	level := gamification.LevelFor(acc.XP, h.thresholds)
	p := gamification.ProgressWithinLevel(acc.XP, level, h.thresholds)
	res := &ProfileResult{
		UserID: acc.UserID.String(),
		XP:     acc.XP,
		Level: LevelDTO{
			Level:      p.Level,
			XPInLevel:  p.XPInLevel,
			XPForLevel: p.XPForLevel,
			XPToNext:   p.XPToNext,
			Percent:    p.Percent,
			IsMaxLevel: p.IsMaxLevel,
		},
		BadgeCount: acc.BadgeCount,
		Streak:     StreakDTO{Milestones: []int{}},
	}

	streak, err := h.reader.GetStreak(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	if streak != nil {
		res.Streak = toStreakDTO(streak, timeutil.TodayFrom(h.clock))
	}

	rank, err := h.reader.RankOf(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	res.Rank = rank.Int()

	if q.HistoryLimit > 0 {
		txns, err := h.reader.ListTransactions(ctx, q.UserID, shared.NewPagination(1, q.HistoryLimit))
		if err != nil {
			return nil, err
		}
		for _, t := range txns {
			res.History = append(res.History, TransactionDTO{
				ID:           t.ID,
				Amount:       t.Amount,
				BalanceAfter: t.BalanceAfter,
				SourceKind:   t.SourceKind.String(),
				SourceID:     t.SourceID,
				Description:  t.Description,
				CreatedAt:    t.CreatedAt,
			})
		}
	}
	return res, nil
}

func toStreakDTO(s *gamification.Streak, today time.Time) StreakDTO {
	dto := StreakDTO{
		Current:    s.Current,
		Longest:    s.Longest,
		Milestones: append([]int{}, s.Milestones...),
		AtRisk:     s.IsAtRisk(today),
	}
	if !s.LastActivity.IsZero() {
		dto.LastActivity = timeutil.FormatDate(s.LastActivity)
	}
	if !s.FrozenUntil.IsZero() {
		dto.FrozenUntil = timeutil.FormatDate(s.FrozenUntil)
	}
	// A lapsed streak reads as zero until the next activity resets it.
	if s.IsLapsed(today) {
		dto.Current = 0
	}
	return dto
}
