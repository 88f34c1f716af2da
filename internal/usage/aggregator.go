package usage

import (
	"sort"
	"time"
)

// Aggregator folds one ordered event stream into per-app usage.
//
// Days are local calendar days in now's location. A session that spans
// midnight is attributed entirely to the day of its background event; the
// duration is not split at the boundary.
type Aggregator struct {
	todayStart     time.Time
	yesterdayStart time.Time
	apps           map[string]*AppUsage
	active         map[string]struct{}
}

// NewAggregator creates an aggregator for a single pass evaluated at now.
func NewAggregator(now time.Time) *Aggregator {
	todayStart := StartOfDay(now)
	return &Aggregator{
		todayStart:     todayStart,
		yesterdayStart: todayStart.AddDate(0, 0, -1),
		apps:           make(map[string]*AppUsage),
		active:         make(map[string]struct{}),
	}
}

// Add processes the next event. Events must be fed in timestamp order.
func (g *Aggregator) Add(ev RawEvent) {
	app, ok := g.apps[ev.AppID]
	if !ok {
		app = &AppUsage{AppID: ev.AppID}
		g.apps[ev.AppID] = app
	}

	t := ev.Timestamp

	switch ev.Kind {
	case Foreground:
		// A repeated foreground without a background in between belongs to
		// the session already open, including its entry time.
		if _, open := g.active[ev.AppID]; !open {
			switch g.bucket(t) {
			case bucketToday:
				app.TodaySessions++
			case bucketYesterday:
				app.YesterdaySessions++
			}
			g.active[ev.AppID] = struct{}{}
			entered := t
			app.LastForegroundEnteredAt = &entered
		}

	case Background:
		if app.LastForegroundEnteredAt != nil {
			if t.After(*app.LastForegroundEnteredAt) {
				d := t.Sub(*app.LastForegroundEnteredAt)
				switch g.bucket(t) {
				case bucketToday:
					app.TodayDuration += d
				case bucketYesterday:
					app.YesterdayDuration += d
				}
			}
			app.LastForegroundEnteredAt = nil
			delete(g.active, ev.AppID)
		}
	}

	if t.After(app.LastUsedAt) {
		app.LastUsedAt = t
	}
}

// Result returns the aggregates with measured usage, keyed by app id.
func (g *Aggregator) Result() map[string]*AppUsage {
	out := make(map[string]*AppUsage, len(g.apps))
	for id, app := range g.apps {
		if app.HasUsage() {
			out[id] = app
		}
	}
	return out
}

// Aggregate runs a full pass over events evaluated at now.
func Aggregate(events []RawEvent, now time.Time) map[string]*AppUsage {
	g := NewAggregator(now)
	for _, ev := range events {
		g.Add(ev)
	}
	return g.Result()
}

// Sorted flattens an aggregate map, busiest app first.
func Sorted(apps map[string]*AppUsage) []AppUsage {
	out := make([]AppUsage, 0, len(apps))
	for _, app := range apps {
		out = append(out, *app)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TodayDuration != out[j].TodayDuration {
			return out[i].TodayDuration > out[j].TodayDuration
		}
		return out[i].AppID < out[j].AppID
	})
	return out
}

type dayBucket int

const (
	bucketNone dayBucket = iota
	bucketToday
	bucketYesterday
)

func (g *Aggregator) bucket(t time.Time) dayBucket {
	switch {
	case !t.Before(g.todayStart):
		return bucketToday
	case !t.Before(g.yesterdayStart):
		return bucketYesterday
	default:
		return bucketNone
	}
}

// StartOfDay returns local midnight of t in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
