package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/application/command"
	"github.com/mentorhub/mentorhub-backend/internal/application/query"
	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/auth"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/metrics"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/memory"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

type apiEnv struct {
	srv      *httptest.Server
	store    *memory.Store
	resolver *auth.JWTResolver
}

func newAPI(t *testing.T, cfg Config, mutate func(*Dependencies)) *apiEnv {
	t.Helper()

	store := memory.NewStore()
	resolver, err := auth.NewJWTResolver("api-secret")
	require.NoError(t, err)

	settings := command.DefaultSettings()
	settings.Clock = timeutil.FixedClock{T: time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)}
	settings.EventXP = map[gamification.RequirementKind]int{gamification.RequirementModulesCompleted: 50}

	deps := Dependencies{
		GetProfile:     query.NewGetProfileHandler(store, gamification.DefaultThresholds, settings.Clock),
		ListBadges:     query.NewListBadgesHandler(store),
		ListQuests:     query.NewListQuestsHandler(store, settings.Clock),
		GetLeaderboard: query.NewGetLeaderboardHandler(store, nil, nil, gamification.DefaultThresholds, nil),
		RecordActivity: command.NewRecordActivityHandler(store, settings),
		RecordEvent:    command.NewRecordEventHandler(store, settings),
		AwardXP:        command.NewAwardXPHandler(store, settings),
		ClaimQuest:     command.NewClaimQuestHandler(store, settings),
		RedeemReward:   command.NewRedeemRewardHandler(store, settings),
		FreezeStreak:   command.NewFreezeStreakHandler(store, settings),
		TokenResolver:  resolver,
		Accounts:       store,
		Metrics:        metrics.New(prometheus.NewRegistry()),
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv := httptest.NewServer(NewServer(cfg, deps).Handler())
	t.Cleanup(srv.Close)
	return &apiEnv{srv: srv, store: store, resolver: resolver}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0
	return cfg
}

func (e *apiEnv) do(t *testing.T, method, path string, user shared.UserID, role shared.Role, body string) (int, JSONResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		tok, err := e.resolver.Issue(user, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out JSONResponse
	if len(bytes.TrimSpace(raw)) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func dataAs[T any](t *testing.T, r JSONResponse) T {
	t.Helper()
	raw, err := json.Marshal(r.Data)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestAPI_AwardThenProfile(t *testing.T) {
	env := newAPI(t, testConfig(), nil)
	require.NoError(t, env.store.EnsureAccount(context.Background(), "alice"))

	status, _ := env.do(t, http.MethodPost, "/api/v1/gamification/xp", "root", shared.RoleAdmin,
		`{"user_id":"alice","amount":50,"source_type":"module","source_id":"m1"}`)
	require.Equal(t, http.StatusOK, status)

	status, resp := env.do(t, http.MethodPost, "/api/v1/gamification/xp", "root", shared.RoleAdmin,
		`{"user_id":"alice","amount":60,"source_type":"module","source_id":"m2"}`)
	require.Equal(t, http.StatusOK, status)
	award := dataAs[command.AwardResult](t, resp)
	assert.Equal(t, 110, award.NewTotal)
	assert.True(t, award.LeveledUp)

	status, resp = env.do(t, http.MethodGet, "/api/v1/gamification/profile?history=5", "alice", shared.RoleMentee, "")
	require.Equal(t, http.StatusOK, status)
	profile := dataAs[query.ProfileResult](t, resp)
	assert.Equal(t, 110, profile.XP)
	assert.Equal(t, 2, profile.Level.Level)
	assert.Equal(t, 1, profile.Rank)
	assert.Len(t, profile.History, 2)
}

func TestAPI_RecordEventDefaultsCountToOne(t *testing.T) {
	env := newAPI(t, testConfig(), nil)

	status, resp := env.do(t, http.MethodPost, "/api/v1/gamification/events", "bob", shared.RoleMentee,
		`{"event_type":"modules_completed"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 50, dataAs[command.RecordEventResult](t, resp).XPEarned)

	status, _ = env.do(t, http.MethodPost, "/api/v1/gamification/events", "bob", shared.RoleMentee,
		`{"event_type":"modules_completed","count":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_RecordEventRejectsUnreportableInput(t *testing.T) {
	env := newAPI(t, testConfig(), nil)

	for _, body := range []string{
		`{"event_type":"streak_days","count":365}`,
		`{"event_type":"modules_completed","count":1000000}`,
	} {
		status, resp := env.do(t, http.MethodPost, "/api/v1/gamification/events", "mallory", shared.RoleMentee, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		require.NotNil(t, resp.Error, body)
		assert.Equal(t, "invalid_input", resp.Error.Code)
	}

	status, resp := env.do(t, http.MethodGet, "/api/v1/gamification/profile", "mallory", shared.RoleMentee, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, dataAs[query.ProfileResult](t, resp).XP)
}

func TestAPI_RecordActivity(t *testing.T) {
	env := newAPI(t, testConfig(), nil)

	status, resp := env.do(t, http.MethodPost, "/api/v1/gamification/activity", "carol", shared.RoleMentee, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, dataAs[command.RecordActivityResult](t, resp).CurrentStreak)
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newAPI(t, testConfig(), nil)
	require.NoError(t, env.store.UpsertReward(context.Background(), &gamification.Reward{
		ID: "sticker", Name: "Sticker", RewardType: "physical", XPCost: 500, Active: true,
	}))

	tests := []struct {
		name   string
		method string
		path   string
		user   shared.UserID
		role   shared.Role
		body   string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/gamification/profile", "", "", "", http.StatusUnauthorized},
		{"mentee grants xp", http.MethodPost, "/api/v1/gamification/xp", "dave", shared.RoleMentee, `{"user_id":"dave","amount":10}`, http.StatusForbidden},
		{"unknown quest", http.MethodPost, "/api/v1/gamification/quests/nope/claim", "dave", shared.RoleMentee, "", http.StatusNotFound},
		{"unknown reward", http.MethodPost, "/api/v1/gamification/rewards/nope/redeem", "dave", shared.RoleMentee, "", http.StatusNotFound},
		{"insufficient xp", http.MethodPost, "/api/v1/gamification/rewards/sticker/redeem", "dave", shared.RoleMentee, "", http.StatusConflict},
		{"freeze days out of range", http.MethodPost, "/api/v1/gamification/streak/freeze", "dave", shared.RoleMentee, `{"days":0}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/gamification/events", "dave", shared.RoleMentee, `{"event_type":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/gamification/streak/freeze", "dave", shared.RoleMentee, `{"weeks":1}`, http.StatusBadRequest},
		{"bad leaderboard limit", http.MethodGet, "/api/v1/gamification/leaderboard?limit=1000", "dave", shared.RoleMentee, "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := env.do(t, tt.method, tt.path, tt.user, tt.role, tt.body)
			assert.Equal(t, tt.want, status)
			require.NotNil(t, resp.Error)
			assert.False(t, resp.Success)
		})
	}
}

func TestAPI_DisabledFeatureIs404(t *testing.T) {
	env := newAPI(t, testConfig(), func(d *Dependencies) { d.GetLeaderboard = nil })

	status, resp := env.do(t, http.MethodGet, "/api/v1/gamification/leaderboard", "erin", shared.RoleMentee, "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "feature disabled", resp.Error.Message)
}

func TestAPI_Leaderboard(t *testing.T) {
	env := newAPI(t, testConfig(), nil)
	ctx := context.Background()
	for _, u := range []shared.UserID{"a", "b", "c"} {
		require.NoError(t, env.store.EnsureAccount(ctx, u))
	}
	for u, xp := range map[shared.UserID]int{"a": 300, "b": 300, "c": 100} {
		status, _ := env.do(t, http.MethodPost, "/api/v1/gamification/xp", "root", shared.RoleAdmin,
			fmt.Sprintf(`{"user_id":%q,"amount":%d}`, u, xp))
		require.Equal(t, http.StatusOK, status)
	}

	status, resp := env.do(t, http.MethodGet, "/api/v1/gamification/leaderboard?limit=3", "c", shared.RoleMentee, "")
	require.Equal(t, http.StatusOK, status)
	board := dataAs[query.GetLeaderboardResult](t, resp)
	require.Len(t, board.Entries, 3)
	assert.Equal(t, []int{1, 1, 3}, []int{board.Entries[0].Rank, board.Entries[1].Rank, board.Entries[2].Rank})
	assert.Equal(t, 3, board.ViewerRank)
}

func TestAPI_OpsEndpoints(t *testing.T) {
	env := newAPI(t, testConfig(), nil)

	status, _ := env.do(t, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodGet, "/ready", "", "", "")
	assert.Equal(t, http.StatusOK, status)

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mentorhub_http_requests_total{route="GET /health",status="200"} 1`)
}

func TestAPI_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0.001
	cfg.RateLimitBurst = 1
	env := newAPI(t, cfg, nil)

	status, _ := env.do(t, http.MethodGet, "/live", "", "", "")
	assert.Equal(t, http.StatusOK, status)
	status, resp := env.do(t, http.MethodGet, "/live", "", "", "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "rate_limited", resp.Error.Code)
}

func TestAPI_RequestIDEchoed(t *testing.T) {
	env := newAPI(t, testConfig(), nil)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/live", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
	var out JSONResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "req-42", out.RequestID)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrQuestNotFound, http.StatusNotFound},
		{shared.ErrQuestAlreadyClaimed, http.StatusConflict},
		{shared.ErrInsufficientXP, http.StatusConflict},
		{shared.ErrInvalidToken, http.StatusUnauthorized},
		{command.ErrFeatureDisabled, http.StatusForbidden},
		{shared.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{shared.ErrZeroAmount, http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
