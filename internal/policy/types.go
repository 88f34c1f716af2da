package policy

import (
	"time"

	"github.com/focuspact/focuspact/internal/usage"
)

// TodayUsage is the part of an aggregate that limits are checked against.
type TodayUsage struct {
	AppID    string
	Duration time.Duration
	Sessions uint32
}

// TodayOf extracts the today figures of an aggregate.
func TodayOf(a usage.AppUsage) TodayUsage {
	return TodayUsage{
		AppID:    a.AppID,
		Duration: a.TodayDuration,
		Sessions: a.TodaySessions,
	}
}

// Reason names the limit type that restricted an app
type Reason string

const (
	ReasonTime     Reason = "time"
	ReasonSessions Reason = "sessions"
)

// Decision is the restriction outcome for one app. Derived, never stored.
type Decision struct {
	AppID                string `json:"package_name"`
	TimeLimitExceeded    bool   `json:"time_limit_exceeded"`
	SessionLimitExceeded bool   `json:"session_limit_exceeded"`
	IsRestricted         bool   `json:"is_restricted"`
}

// Reasons lists the exceeded limit types.
func (d Decision) Reasons() []Reason {
	var reasons []Reason
	if d.TimeLimitExceeded {
		reasons = append(reasons, ReasonTime)
	}
	if d.SessionLimitExceeded {
		reasons = append(reasons, ReasonSessions)
	}
	return reasons
}

// Budget is what is left of each configured limit today. Has* is false when
// the limit type is not enabled.
type Budget struct {
	HasTime           bool
	TimeRemaining     time.Duration
	HasSessions       bool
	SessionsRemaining uint32
}
