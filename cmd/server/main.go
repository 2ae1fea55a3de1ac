// Command server runs the MentorHub API: the gamification endpoints and the
// realtime collaboration hub.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/mentorhub/mentorhub-backend/config"
	"github.com/mentorhub/mentorhub-backend/internal/application/command"
	"github.com/mentorhub/mentorhub-backend/internal/application/eventhandler"
	"github.com/mentorhub/mentorhub-backend/internal/application/query"
	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/auth"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/messaging"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/metrics"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence/memory"
	httpserver "github.com/mentorhub/mentorhub-backend/internal/interface/http"
	"github.com/mentorhub/mentorhub-backend/internal/interface/http/handlers"
	"github.com/mentorhub/mentorhub-backend/internal/interface/realtime"
	"github.com/mentorhub/mentorhub-backend/pkg/circuitbreaker"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewFromMode(cfg.LogMode(), cfg.Observability.LogLevel).
		With(logger.String("service", "server"), logger.String("version", cfg.App.Version))
	defer log.Sync()

	log.Info("starting MentorHub server",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	backend, err := persistence.Open(ctx, persistence.OptionsFromConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		log.Info("closing storage")
		backend.Close()
	}()

	if backend.Memory != nil && cfg.IsDevelopment() {
		if err := seedDevCatalog(ctx, backend.Memory); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
		log.Info("seeded development catalog")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.Metrics = m

	var bus eventBus
	if backend.Cache != nil {
		bus, err = messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:         backend.Cache.Client(),
			ChannelName:    cfg.Redis.EventChannel,
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start event bus: %w", err)
		}
	} else {
		bus = messaging.NewInMemoryEventBus(busConfig)
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	thresholds := gamification.Thresholds(cfg.Gamification.LevelThresholds)
	clock := timeutil.SystemClock{}
	flags := cfg.Features

	settings := command.Settings{
		Thresholds: thresholds,
		Clock:      clock,
		Toggles: command.Toggles{
			Streaks: flags.IsEnabled(config.FeatureGamificationStreaks, nil),
			Badges:  flags.IsEnabled(config.FeatureGamificationBadges, nil),
			Quests:  flags.IsEnabled(config.FeatureGamificationQuests, nil),
		},
		EventXP:   eventXP(cfg.Gamification.EventXP),
		Metrics:   m,
		Publisher: bus,
		Logger:    log,
	}

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	lbCache := backend.LeaderboardCache()

	deps := httpserver.Dependencies{
		GetProfile:     query.NewGetProfileHandler(backend.Ledger, thresholds, clock),
		RecordActivity: command.NewRecordActivityHandler(backend.Ledger, settings),
		RecordEvent:    command.NewRecordEventHandler(backend.Ledger, settings),
		AwardXP:        command.NewAwardXPHandler(backend.Ledger, settings),
		RedeemReward:   command.NewRedeemRewardHandler(backend.Ledger, settings),
		Logger:         log,
		Version:        cfg.App.Version,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = m
	}
	if settings.Toggles.Streaks {
		deps.FreezeStreak = command.NewFreezeStreakHandler(backend.Ledger, settings)
	}
	if settings.Toggles.Badges {
		deps.ListBadges = query.NewListBadgesHandler(backend.Ledger)
	}
	if settings.Toggles.Quests {
		deps.ListQuests = query.NewListQuestsHandler(backend.Ledger, clock)
		deps.ClaimQuest = command.NewClaimQuestHandler(backend.Ledger, settings)
	}
	if flags.IsEnabled(config.FeatureGamificationLeaderboard, nil) {
		deps.GetLeaderboard = query.NewGetLeaderboardHandler(backend.Source, lbCache, breaker, thresholds, log)
	}
	if cfg.Gamification.AutoProvision {
		deps.Accounts = backend.Ledger
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if err := eventhandler.NewOnAchievementHandler(log).Register(bus); err != nil {
		return fmt.Errorf("failed to register achievement handler: %w", err)
	}
	if lbCache != nil {
		if err := eventhandler.NewOnXPAwardedHandler(lbCache, breaker, log).Register(bus); err != nil {
			return fmt.Errorf("failed to register leaderboard handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. AUTH & REALTIME HUB
	// ─────────────────────────────────────────────────────────────────────────
	var authOpts []auth.Option
	if cfg.Auth.Issuer != "" {
		authOpts = append(authOpts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	resolver, err := auth.NewJWTResolver(cfg.Auth.JWTSecret, authOpts...)
	if err != nil {
		return fmt.Errorf("failed to create token resolver: %w", err)
	}
	deps.TokenResolver = resolver

	var hub *realtime.Hub
	if flags.IsEnabled(config.FeatureCollaborationHub, nil) {
		hub = realtime.NewHub(backend.States, backend.Mentorships, realtime.HubOptions{
			Config:    hubConfig(cfg.Collaboration),
			Publisher: bus,
			Metrics:   m,
			Logger:    log,
		})
		deps.Collaboration = realtime.NewHandler(hub, resolver, backend.Mentorships, cfg.Collaboration.AllowedOrigins)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if backend.DB != nil {
		health.AddCritical("postgres", handlers.PingCheck(backend.DB))
	}
	if backend.Cache != nil {
		health.AddCheck("redis", handlers.PingCheck(backend.Cache))
	}
	deps.HealthChecker = health

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpConfig(cfg.HTTP)
	server := httpserver.NewServer(serverConfig, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()

		if hub != nil {
			hub.Shutdown()
		}
		return server.Shutdown(shutdownCtx)
	})

	log.Info("MentorHub server is running", logger.String("address", serverConfig.Address()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped with error", logger.Err(err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type eventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

func httpConfig(c config.HTTPConfig) httpserver.Config {
	hc := httpserver.DefaultConfig()
	hc.Host = c.Host
	hc.Port = c.Port
	hc.ReadTimeout = c.ReadTimeout
	hc.WriteTimeout = c.WriteTimeout
	hc.IdleTimeout = c.IdleTimeout
	hc.MaxBodyBytes = c.MaxBodyBytes
	hc.EnableCORS = c.EnableCORS
	if len(c.AllowedOrigins) > 0 {
		hc.AllowedOrigins = c.AllowedOrigins
	}
	hc.RateLimitPerSecond = c.RateLimitPerSec
	hc.RateLimitBurst = c.RateLimitBurst
	return hc
}

func hubConfig(c config.CollaborationConfig) realtime.Config {
	hc := realtime.DefaultConfig()
	hc.SendBuffer = c.SendBuffer
	hc.MaxMessageSize = c.MaxMessageSize
	hc.WriteWait = c.WriteWait
	hc.PongWait = c.PongWait
	hc.PingPeriod = c.PingPeriod
	hc.PersistTimeout = c.PersistTimeout
	return hc
}

func eventXP(in map[string]int) map[gamification.RequirementKind]int {
	out := make(map[gamification.RequirementKind]int, len(in))
	for k, v := range in {
		out[gamification.RequirementKind(k)] = v
	}
	return out
}

// seedDevCatalog gives a fresh in-memory store something to earn.
func seedDevCatalog(ctx context.Context, store *memory.Store) error {
	badges := []*gamification.Badge{
		{ID: "first-module", Slug: "first-module", Name: "First Steps", Category: "learning",
			Tier: gamification.TierBronze, RequirementType: gamification.RequirementModulesCompleted,
			RequirementValue: 1, XPReward: 25, Active: true},
		{ID: "regular", Slug: "regular", Name: "Regular", Category: "mentorship",
			Tier: gamification.TierSilver, RequirementType: gamification.RequirementSessionsAttended,
			RequirementValue: 5, XPReward: 100, Active: true},
		{ID: "week-streak", Slug: "week-streak", Name: "On Fire", Category: "consistency",
			Tier: gamification.TierGold, RequirementType: gamification.RequirementStreakDays,
			RequirementValue: 7, XPReward: 150, Active: true},
	}
	for _, b := range badges {
		if err := store.UpsertBadge(ctx, b); err != nil {
			return err
		}
	}

	quests := []*gamification.Quest{
		{ID: "daily-module", Title: "Complete a module today", QuestType: gamification.QuestDaily,
			RequirementType: gamification.RequirementModulesCompleted, RequirementValue: 1, XPReward: 30, Active: true},
		{ID: "weekly-submissions", Title: "Submit code five times", QuestType: gamification.QuestWeekly,
			RequirementType: gamification.RequirementCodeSubmissions, RequirementValue: 5, XPReward: 80, Active: true},
	}
	for _, q := range quests {
		if err := store.UpsertQuest(ctx, q); err != nil {
			return err
		}
	}

	return store.UpsertReward(ctx, &gamification.Reward{
		ID: "profile-theme", Name: "Profile theme", RewardType: "cosmetic", XPCost: 200, Active: true,
	})
}
