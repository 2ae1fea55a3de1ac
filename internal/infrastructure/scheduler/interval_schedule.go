package scheduler

import (
	"fmt"
	"time"
)

// MinInterval is the shortest interval the scheduler loop can honour.
const MinInterval = time.Second

// IntervalSchedule fires on multiples of Interval since the Unix epoch, so
// every worker instance with the same interval ticks at the same moments.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule validates interval.
func NewIntervalSchedule(interval time.Duration) (*IntervalSchedule, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("interval %s is shorter than %s", interval, MinInterval)
	}
	return &IntervalSchedule{Interval: interval}, nil
}

// Next returns the next boundary strictly after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	next := t.Truncate(s.Interval).Add(s.Interval)
	if !next.After(t) {
		next = next.Add(s.Interval)
	}
	return next
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}
