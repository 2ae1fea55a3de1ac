// Command worker runs the scheduled background jobs: the leaderboard cache
// rebuild and the lapsed streak scan.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/mentorhub/mentorhub-backend/config"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/messaging"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/metrics"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/persistence"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/scheduler"
	"github.com/mentorhub/mentorhub-backend/internal/infrastructure/scheduler/jobs"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
	"github.com/mentorhub/mentorhub-backend/pkg/timeutil"
)

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
	if cfg.Database.URL == "" {
		return errors.New("worker requires DATABASE_URL")
	}

	log := logger.NewFromMode(cfg.LogMode(), cfg.Observability.LogLevel).
		With(logger.String("service", "worker"), logger.String("version", cfg.App.Version))
	defer log.Sync()

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, exiting")
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE & EVENTS
	// ─────────────────────────────────────────────────────────────────────────
	backend, err := persistence.Open(ctx, persistence.OptionsFromConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	var publisher shared.EventPublisher = shared.NopPublisher{}
	if backend.Cache != nil {
		busConfig := messaging.DefaultInMemoryEventBusConfig()
		busConfig.Metrics = m
		bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:         backend.Cache.Client(),
			ChannelName:    cfg.Redis.EventChannel,
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start event bus: %w", err)
		}
		defer func() { _ = bus.Close() }()
		publisher = bus
	} else {
		log.Warn("redis disabled: leaderboard rebuild is off and events stay local")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Metrics:  m,
		Timezone: cfg.App.Location,
	})

	if lbCache := backend.LeaderboardCache(); lbCache != nil {
		rebuild := jobs.NewRebuildLeaderboardJob(backend.Source, lbCache, backend.Cache, publisher, log,
			jobs.RebuildLeaderboardConfig{
				Size:    cfg.Gamification.LeaderboardSize,
				Timeout: cfg.Scheduler.JobTimeout,
			})
		if err := register(sched, rebuild, cfg.Scheduler.RebuildLeaderboardSchedule); err != nil {
			return err
		}
	}

	lapsed := jobs.NewDetectLapsedStreaksJob(backend.Ledger, timeutil.SystemClock{}, publisher, log)
	if err := register(sched, lapsed, cfg.Scheduler.DetectStreaksSchedule); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN
	// ─────────────────────────────────────────────────────────────────────────
	metricsServer := &http.Server{
		Addr:              cfg.Observability.WorkerMetricsAddr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if cfg.Observability.MetricsEnabled {
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	log.Info("MentorHub worker is running", logger.Int("jobs", len(sched.ListJobs())))
	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", logger.Err(err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}

func register(s *scheduler.Scheduler, job scheduler.Job, spec string) error {
	schedule, err := scheduler.ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("schedule for %s: %w", job.Name(), err)
	}
	if err := s.Register(job, schedule); err != nil {
		return fmt.Errorf("register %s: %w", job.Name(), err)
	}
	return nil
}
