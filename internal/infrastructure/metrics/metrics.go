// Package metrics exposes Prometheus collectors for the gamification core,
// the collaboration hub, the event bus and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mentorhub/mentorhub-backend/internal/domain/gamification"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

const namespace = "mentorhub"

// Metrics holds every collector. Create one per process with New.
type Metrics struct {
	registry prometheus.Gatherer

	xpAwarded      *prometheus.CounterVec
	xpSpent        *prometheus.CounterVec
	levelUps       *prometheus.CounterVec
	streaks        *prometheus.CounterVec
	badgeUnlocks   prometheus.Counter
	questsDone     prometheus.Counter
	questClaims    prometheus.Counter
	rewardRedeems  prometheus.Counter
	hubConnections prometheus.Gauge
	hubRooms       prometheus.Gauge
	hubDropped     prometheus.Counter
	hubMessages    *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
	eventDuration  *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	jobRuns        *prometheus.CounterVec
}

// New registers collectors on reg. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		xpAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "xp_awarded_total",
			Help: "XP credited, by source kind.",
		}, []string{"source"}),
		xpSpent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "xp_spent_total",
			Help: "XP debited, by source kind.",
		}, []string{"source"}),
		levelUps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "level_ups_total",
			Help: "Level-ups by level reached.",
		}, []string{"level"}),
		streaks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "streak", Name: "activity_total",
			Help: "Recorded activities by outcome.",
		}, []string{"outcome"}),
		badgeUnlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "badge", Name: "unlocks_total",
			Help: "Badges unlocked.",
		}),
		questsDone: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quest", Name: "completed_total",
			Help: "Quests completed.",
		}),
		questClaims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quest", Name: "claims_total",
			Help: "Quest rewards claimed.",
		}),
		rewardRedeems: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reward", Name: "redemptions_total",
			Help: "Rewards redeemed.",
		}),
		hubConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "collab", Name: "connections",
			Help: "Open collaboration websocket connections.",
		}),
		hubRooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "collab", Name: "rooms",
			Help: "Active collaboration rooms.",
		}),
		hubDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "collab", Name: "dropped_receivers_total",
			Help: "Receivers removed because their send buffer was full or the write failed.",
		}),
		hubMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "collab", Name: "messages_total",
			Help: "Inbound collaboration messages by type.",
		}, []string{"type"}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "published_total",
			Help: "Domain events published by type.",
		}, []string{"type"}),
		eventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "events", Name: "handler_duration_seconds",
			Help:    "Event handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type", "success"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_runs_total",
			Help: "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ══════════════════════════════════════════════════════════════════════════════
// GAMIFICATION
// ══════════════════════════════════════════════════════════════════════════════

func (m *Metrics) XPAwarded(source gamification.SourceKind, amount int) {
	if amount < 0 {
		m.xpSpent.WithLabelValues(source.String()).Add(float64(-amount))
		return
	}
	m.xpAwarded.WithLabelValues(source.String()).Add(float64(amount))
}

func (m *Metrics) LevelUp(level int)             { m.levelUps.WithLabelValues(strconv.Itoa(level)).Inc() }
func (m *Metrics) StreakRecorded(outcome string) { m.streaks.WithLabelValues(outcome).Inc() }
func (m *Metrics) BadgeUnlocked()                { m.badgeUnlocks.Inc() }
func (m *Metrics) QuestCompleted()               { m.questsDone.Inc() }
func (m *Metrics) QuestClaimed()                 { m.questClaims.Inc() }
func (m *Metrics) RewardRedeemed()               { m.rewardRedeems.Inc() }

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATION HUB
// ══════════════════════════════════════════════════════════════════════════════

func (m *Metrics) ClientConnected()               { m.hubConnections.Inc() }
func (m *Metrics) ClientDisconnected()            { m.hubConnections.Dec() }
func (m *Metrics) RoomOpened()                    { m.hubRooms.Inc() }
func (m *Metrics) RoomClosed()                    { m.hubRooms.Dec() }
func (m *Metrics) ReceiverDropped()               { m.hubDropped.Inc() }
func (m *Metrics) MessageReceived(msgType string) { m.hubMessages.WithLabelValues(msgType).Inc() }

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS, HTTP, JOBS
// ══════════════════════════════════════════════════════════════════════════════

// EventPublished counts one published event.
func (m *Metrics) EventPublished(t shared.EventType) {
	m.eventsTotal.WithLabelValues(string(t)).Inc()
}

// EventHandled records one handler execution.
func (m *Metrics) EventHandled(t shared.EventType, d time.Duration, success bool) {
	m.eventDuration.WithLabelValues(string(t), strconv.FormatBool(success)).Observe(d.Seconds())
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// JobRun records one scheduled job execution.
func (m *Metrics) JobRun(job string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}
