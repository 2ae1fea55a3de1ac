package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// alwaysDue is due on every tick.
type alwaysDue struct{}

func (alwaysDue) Next(t time.Time) time.Time { return t }
func (alwaysDue) String() string             { return "always" }

func mustParse(t *testing.T, spec string) Schedule {
	t.Helper()
	s, err := ParseSchedule(spec)
	require.NoError(t, err)
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

func TestCronExpression_Next(t *testing.T) {
	base := time.Date(2024, time.May, 1, 10, 30, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2024, time.May, 1, 10, 31, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2024, time.May, 1, 10, 45, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2024, time.May, 1, 11, 0, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2024, time.May, 2, 3, 0, 0, 0, time.UTC)},
		{"30 10 * * *", time.Date(2024, time.May, 2, 10, 30, 0, 0, time.UTC)},
		{"0 9 * * 1", time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{"0 8-9 * * *", time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)},
		{"0 12,18 * * *", time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ce.Next(base))
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestCronExpression_DayOfMonthOrWeekday(t *testing.T) {
	// Both restricted: either matches.
	ce := MustParseCronExpression("0 0 15 * 5")
	base := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC), ce.Next(base))
}

func TestCronExpression_NeverMatches(t *testing.T) {
	ce := MustParseCronExpression("0 0 31 2 *")
	assert.True(t, ce.Next(time.Now()).IsZero())
}

func TestParseCronExpression_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
		"1,,2 * * * *",
	} {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
	assert.Panics(t, func() { MustParseCronExpression("bad") })
}

func TestIntervalSchedule(t *testing.T) {
	_, err := NewIntervalSchedule(500 * time.Millisecond)
	assert.Error(t, err)

	s, err := NewIntervalSchedule(10 * time.Minute)
	require.NoError(t, err)

	at := time.Date(2024, time.May, 1, 10, 3, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.May, 1, 10, 10, 0, 0, time.UTC), s.Next(at))

	onBoundary := time.Date(2024, time.May, 1, 10, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.May, 1, 10, 20, 0, 0, time.UTC), s.Next(onBoundary))
	assert.Equal(t, "@every 10m0s", s.String())
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2024, time.May, 1, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, time.May, 1, 11, 0, 0, 0, time.UTC), mustParse(t, "@hourly").Next(base))
	assert.Equal(t, time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC), mustParse(t, "@daily").Next(base))
	assert.Equal(t, time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), mustParse(t, "@weekly").Next(base))
	assert.Equal(t, time.Date(2024, time.May, 1, 10, 35, 0, 0, time.UTC), mustParse(t, "@every 5m").Next(base))
	assert.Equal(t, time.Date(2024, time.May, 1, 10, 45, 0, 0, time.UTC), mustParse(t, " */15 * * * * ").Next(base))

	for _, bad := range []string{"@every soon", "@every 1ms", "@yearly", "nope"} {
		s, err := ParseSchedule(bad)
		assert.Error(t, err, bad)
		assert.Nil(t, s, bad)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

func TestScheduler_Register(t *testing.T) {
	s := New(Config{})
	job := &funcJob{name: "a", fn: func(context.Context) error { return nil }}

	require.NoError(t, s.Register(job, mustParse(t, "@hourly")))
	assert.ErrorIs(t, s.Register(job, mustParse(t, "@hourly")), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, mustParse(t, "@hourly")), ErrNilJob)
	assert.ErrorIs(t, s.Register(&funcJob{name: "b"}, nil), ErrNilSchedule)
	assert.ErrorIs(t, s.SetEnabled("missing", false), ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "0 * * * *", jobs[0].Schedule)
	assert.True(t, jobs[0].Enabled)
	assert.False(t, jobs[0].NextRun.IsZero())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(Config{})
	boom := errors.New("boom")
	calls := 0
	require.NoError(t, s.Register(&funcJob{name: "ok", fn: func(context.Context) error {
		calls++
		return nil
	}}, mustParse(t, "@daily")))
	require.NoError(t, s.Register(&funcJob{name: "fail", fn: func(context.Context) error {
		return boom
	}}, mustParse(t, "@daily")))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.True(t, res.Manual)
	assert.Equal(t, 1, calls)

	res, err = s.RunNow(context.Background(), "fail")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success())

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "fail", jobs[0].Name)
	assert.Equal(t, int64(1), jobs[0].FailCount)
	assert.Equal(t, int64(1), jobs[1].RunCount)

	hist := s.History(0)
	require.Len(t, hist, 2)
	assert.Equal(t, "ok", hist[0].JobName)
	assert.Equal(t, "fail", hist[1].JobName)
	assert.Len(t, s.History(1), 1)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Register(&funcJob{name: "panicky", fn: func(context.Context) error {
		panic("kaboom")
	}}, mustParse(t, "@daily")))

	_, err := s.RunNow(context.Background(), "panicky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestScheduler_HistoryBounded(t *testing.T) {
	s := New(Config{MaxHistorySize: 3})
	require.NoError(t, s.Register(&funcJob{name: "j", fn: func(context.Context) error { return nil }}, mustParse(t, "@daily")))
	for range 5 {
		_, err := s.RunNow(context.Background(), "j")
		require.NoError(t, err)
	}
	assert.Len(t, s.History(0), 3)
}

type countingMetrics struct{ runs, fails atomic.Int32 }

func (m *countingMetrics) JobRun(job string, err error) {
	m.runs.Add(1)
	if err != nil {
		m.fails.Add(1)
	}
}

func TestScheduler_LoopSkipsOverlappingRuns(t *testing.T) {
	metrics := &countingMetrics{}
	s := New(Config{Tick: 5 * time.Millisecond, Metrics: metrics})

	var started atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.Register(&funcJob{name: "slow", fn: func(ctx context.Context) error {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}, alwaysDue{}))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Several ticks pass while the first run is blocked.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.Eventually(t, func() bool { return started.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.GreaterOrEqual(t, metrics.runs.Load(), int32(1))
	assert.Zero(t, metrics.fails.Load())
}

func TestScheduler_DisabledJobNotRun(t *testing.T) {
	s := New(Config{Tick: 5 * time.Millisecond})
	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "off", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, alwaysDue{}))
	require.NoError(t, s.SetEnabled("off", false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Zero(t, runs.Load())
}
