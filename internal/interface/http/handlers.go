package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mentorhub/mentorhub-backend/internal/application/command"
	"github.com/mentorhub/mentorhub-backend/internal/application/query"
	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/interface/http/handlers"
)

// errFeatureOff is returned by routes whose handler is not wired.
var errFeatureOff = shared.NewDomainError("http", "Route", shared.ErrNotFound, "feature disabled")

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.deps.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady fails only when a critical dependency is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE & CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProfile handles GET /api/v1/gamification/profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetProfile == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}
	p := principal(r)

	result, err := s.deps.GetProfile.Handle(r.Context(), query.GetProfileQuery{
		UserID:       p.UserID,
		HistoryLimit: clamp(getQueryParamInt(r, "history", 0), 0, 100),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleListBadges handles GET /api/v1/gamification/badges
func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListBadges == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	result, err := s.deps.ListBadges.Handle(r.Context(), query.ListBadgesQuery{
		UserID: principal(r).UserID,
		Filter: gamification.BadgeFilter{
			UnlockedOnly: getQueryParamBool(r, "unlocked"),
			Category:     r.URL.Query().Get("category"),
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleListQuests handles GET /api/v1/gamification/quests
func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListQuests == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	result, err := s.deps.ListQuests.Handle(r.Context(), query.ListQuestsQuery{
		UserID: principal(r).UserID,
		Filter: gamification.QuestFilter{
			QuestType:  gamification.QuestType(r.URL.Query().Get("type")),
			ActiveOnly: getQueryParamBool(r, "active"),
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetLeaderboard handles GET /api/v1/gamification/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboard == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	result, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		Limit:  getQueryParamInt(r, "limit", 10),
		Viewer: principal(r).UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.FromCache {
		w.Header().Set("X-Cache", "HIT")
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRecordActivity handles POST /api/v1/gamification/activity. The
// activity date is the server's UTC date.
func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordActivity == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	result, err := s.deps.RecordActivity.Handle(r.Context(), command.RecordActivityCommand{
		UserID: principal(r).UserID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type recordEventRequest struct {
	EventType string `json:"event_type"`
	Count     *int   `json:"count"`
	SourceID  string `json:"source_id"`
}

// handleRecordEvent handles POST /api/v1/gamification/events
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordEvent == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	var req recordEventRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}

	result, err := s.deps.RecordEvent.Handle(r.Context(), command.RecordEventCommand{
		UserID:    principal(r).UserID,
		EventKind: gamification.RequirementKind(req.EventType),
		Count:     count,
		SourceID:  req.SourceID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type awardXPRequest struct {
	UserID      string `json:"user_id"`
	Amount      int    `json:"amount"`
	SourceType  string `json:"source_type"`
	SourceID    string `json:"source_id"`
	Description string `json:"description"`
}

// handleAwardXP handles POST /api/v1/gamification/xp (admin only).
func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	if s.deps.AwardXP == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	var req awardXPRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SourceType == "" {
		req.SourceType = string(gamification.SourceManual)
	}

	result, err := s.deps.AwardXP.Handle(r.Context(), command.AwardXPCommand{
		UserID:      shared.UserID(strings.TrimSpace(req.UserID)),
		Amount:      req.Amount,
		SourceKind:  req.SourceType,
		SourceID:    req.SourceID,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleClaimQuest handles POST /api/v1/gamification/quests/{id}/claim
func (s *Server) handleClaimQuest(w http.ResponseWriter, r *http.Request) {
	if s.deps.ClaimQuest == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	result, err := s.deps.ClaimQuest.Handle(r.Context(), command.ClaimQuestCommand{
		UserID:  principal(r).UserID,
		QuestID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleRedeemReward handles POST /api/v1/gamification/rewards/{id}/redeem
func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request) {
	if s.deps.RedeemReward == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	result, err := s.deps.RedeemReward.Handle(r.Context(), command.RedeemRewardCommand{
		UserID:   principal(r).UserID,
		RewardID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type freezeRequest struct {
	Days int `json:"days"`
}

// handleFreezeStreak handles POST /api/v1/gamification/streak/freeze
func (s *Server) handleFreezeStreak(w http.ResponseWriter, r *http.Request) {
	if s.deps.FreezeStreak == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}

	var req freezeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.FreezeStreak.Handle(r.Context(), command.FreezeStreakCommand{
		UserID: principal(r).UserID,
		Days:   req.Days,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATION
// ══════════════════════════════════════════════════════════════════════════════

// handleCollaboration handles GET /api/v1/collaboration/{session_id}/ws
func (s *Server) handleCollaboration(w http.ResponseWriter, r *http.Request) {
	if s.deps.Collaboration == nil {
		s.writeError(w, r, errFeatureOff)
		return
	}
	s.deps.Collaboration.ServeHTTP(w, r)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// principal returns the caller. Routes using it sit behind BearerAuth.
func principal(r *http.Request) shared.Principal {
	p, _ := handlers.PrincipalFrom(r.Context())
	return p
}

// decodeBody reads a JSON body. An empty body leaves v at its zero value.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return shared.WrapError("http", "DecodeBody", shared.ErrInvalidFormat, "malformed JSON body", err)
	}
	return nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
