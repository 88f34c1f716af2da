package usage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPermissionDenied is returned when usage access has not been granted.
	ErrPermissionDenied = errors.New("usage: permission denied")

	// ErrUnavailable is returned when the platform has no usage event facility.
	ErrUnavailable = errors.New("usage: event source unavailable")
)

// EventKind is the lifecycle transition carried by a RawEvent.
type EventKind int

const (
	Foreground EventKind = iota + 1
	Background
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseEventKind converts a wire name into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "foreground":
		return Foreground, nil
	case "background":
		return Background, nil
	default:
		return 0, fmt.Errorf("invalid event kind: %q", s)
	}
}

// RawEvent is a single OS-reported foreground/background transition.
type RawEvent struct {
	AppID     string
	Kind      EventKind
	Timestamp time.Time
}

// AppUsage is the per-app aggregate produced by one aggregation pass.
type AppUsage struct {
	AppID             string
	TodayDuration     time.Duration
	YesterdayDuration time.Duration
	TodaySessions     uint32
	YesterdaySessions uint32

	// LastForegroundEnteredAt is non-nil only while the app is in foreground.
	LastForegroundEnteredAt *time.Time
	LastUsedAt              time.Time
}

// HasUsage reports whether any duration was measured for the app.
func (a *AppUsage) HasUsage() bool {
	return a.TodayDuration > 0 || a.YesterdayDuration > 0
}

// Stats is the result of a successful usage query.
type Stats struct {
	Start time.Time
	End   time.Time
	Now   time.Time
	Apps  []AppUsage
}

// NoData reports a successful query that measured no usage.
func (s *Stats) NoData() bool {
	return len(s.Apps) == 0
}

// Find returns the aggregate for appID, if present.
func (s *Stats) Find(appID string) (AppUsage, bool) {
	for _, a := range s.Apps {
		if a.AppID == appID {
			return a, true
		}
	}
	return AppUsage{}, false
}
