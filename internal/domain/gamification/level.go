package gamification

import (
	"fmt"
	"sort"
)

// Thresholds are the cumulative XP values at which levels 2, 3, ... begin.
// Level 1 starts at 0 XP; the maximum level is len(Thresholds)+1.
type Thresholds []int

// DefaultThresholds is the production level table.
var DefaultThresholds = Thresholds{100, 300, 600, 1000, 1500, 2200, 3000, 4000, 5000}

// Validate checks the table is non-empty, positive and strictly ascending.
func (t Thresholds) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("level thresholds: empty")
	}
	for i, v := range t {
		if v <= 0 {
			return fmt.Errorf("level thresholds: value %d at %d must be positive", v, i)
		}
		if i > 0 && v <= t[i-1] {
			return fmt.Errorf("level thresholds: not strictly ascending at %d", i)
		}
	}
	return nil
}

// MaxLevel returns the highest reachable level.
func (t Thresholds) MaxLevel() int {
	return len(t) + 1
}

// LevelFor returns 1 + the number of thresholds ≤ xp, capped at MaxLevel.
func LevelFor(xp int, t Thresholds) int {
	// First index whose threshold is greater than xp.
	n := sort.Search(len(t), func(i int) bool { return t[i] > xp })
	return n + 1
}

// LevelProgress describes how far a user is through their current level.
type LevelProgress struct {
	Level       int
	XPInLevel   int
	XPForLevel  int
	Percent     float64
	XPToNext    int
	IsMaxLevel  bool
	LevelStart  int
	NextLevelAt int
}

// ProgressWithinLevel returns progress through the given level. At max
// level, or when the level has zero width, Percent is 100.
func ProgressWithinLevel(xp, level int, t Thresholds) LevelProgress {
	if level < 1 {
		level = 1
	}
	if level >= t.MaxLevel() {
		start := 0
		if len(t) > 0 {
			start = t[len(t)-1]
		}
		return LevelProgress{
			Level:       t.MaxLevel(),
			XPInLevel:   max(xp-start, 0),
			Percent:     100,
			IsMaxLevel:  true,
			LevelStart:  start,
			NextLevelAt: start,
		}
	}

	start := 0
	if level > 1 {
		start = t[level-2]
	}
	next := t[level-1]
	width := next - start

	p := LevelProgress{
		Level:       level,
		XPInLevel:   xp - start,
		XPForLevel:  width,
		XPToNext:    max(next-xp, 0),
		LevelStart:  start,
		NextLevelAt: next,
	}
	if width <= 0 {
		p.Percent = 100
		return p
	}
	p.Percent = clampPercent(float64(xp-start) / float64(width) * 100)
	return p
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
