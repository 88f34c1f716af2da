package usage

import (
	"fmt"
	"time"
)

// Timeframe is a named lookback window used for rollups.
type Timeframe string

const (
	Today      Timeframe = "today"
	Yesterday  Timeframe = "yesterday"
	Week       Timeframe = "week"
	TwoWeeks   Timeframe = "twoWeeks"
	ThreeWeeks Timeframe = "threeWeeks"
	Month      Timeframe = "month"
)

// Timeframes lists all windows in display order.
var Timeframes = []Timeframe{Today, Yesterday, Week, TwoWeeks, ThreeWeeks, Month}

// LookbackDays returns the number of calendar days the window reaches back.
func (tf Timeframe) LookbackDays() int {
	switch tf {
	case Today:
		return 0
	case Yesterday:
		return 1
	case Week:
		return 7
	case TwoWeeks:
		return 14
	case ThreeWeeks:
		return 21
	case Month:
		return 30
	default:
		return -1
	}
}

// ParseTimeframe validates a timeframe name.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if tf.LookbackDays() < 0 {
		return "", fmt.Errorf("invalid timeframe: %q", s)
	}
	return tf, nil
}

// Projection holds per-timeframe rollups for one app.
//
// Only two days of real data exist, so week and longer windows are the
// today+yesterday total when the app was last used inside the window and zero
// otherwise. They are not historical sums.
type Projection struct {
	AppID     string
	Sessions  map[Timeframe]uint32
	Durations map[Timeframe]time.Duration
}

// Project derives the timeframe rollups for a single aggregate.
func Project(a AppUsage, now time.Time) Projection {
	p := Projection{
		AppID:     a.AppID,
		Sessions:  make(map[Timeframe]uint32, len(Timeframes)),
		Durations: make(map[Timeframe]time.Duration, len(Timeframes)),
	}

	totalSessions := a.TodaySessions + a.YesterdaySessions
	totalDuration := a.TodayDuration + a.YesterdayDuration

	p.Sessions[Today] = a.TodaySessions
	p.Sessions[Yesterday] = a.YesterdaySessions

	p.Durations[Today] = 0
	if IsToday(a.LastUsedAt, now) {
		p.Durations[Today] = a.TodayDuration
	}
	p.Durations[Yesterday] = 0
	if IsYesterday(a.LastUsedAt, now) {
		p.Durations[Yesterday] = a.YesterdayDuration
	}

	for _, tf := range []Timeframe{Week, TwoWeeks, ThreeWeeks, Month} {
		if IsWithinLastNDays(a.LastUsedAt, now, tf.LookbackDays()) {
			p.Sessions[tf] = totalSessions
			p.Durations[tf] = totalDuration
		} else {
			p.Sessions[tf] = 0
			p.Durations[tf] = 0
		}
	}

	return p
}

// IsWithinLastNDays reports whether ts falls on or after local midnight n
// calendar days before now.
func IsWithinLastNDays(ts, now time.Time, n int) bool {
	cutoff := StartOfDay(now).AddDate(0, 0, -n)
	return !ts.Before(cutoff)
}

// IsToday reports whether ts is on now's calendar date.
func IsToday(ts, now time.Time) bool {
	return sameDate(ts.In(now.Location()), now)
}

// IsYesterday reports whether ts is on the calendar date before now's.
func IsYesterday(ts, now time.Time) bool {
	return sameDate(ts.In(now.Location()), now.AddDate(0, 0, -1))
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
