package limits

import (
	"time"

	"github.com/focuspact/focuspact/internal/storage"
)

// LimitType selects the time or the session limit of an app.
type LimitType = storage.LimitType

const (
	Time     = storage.LimitTime
	Sessions = storage.LimitSessions
)

// AppLimit is the limit configuration for one app. Each type is toggled
// independently; a nil value means the type is not configured.
type AppLimit struct {
	AppID               string
	AppName             string
	TimeLimitMinutes    *uint32
	TimeLimitEnabled    bool
	SessionLimitCount   *uint32
	SessionLimitEnabled bool
	Public              bool
	UpdatedAt           time.Time
}

// HasTimeLimit reports whether an enabled time limit is configured.
func (l *AppLimit) HasTimeLimit() bool {
	return l != nil && l.TimeLimitEnabled && l.TimeLimitMinutes != nil
}

// HasSessionLimit reports whether an enabled session limit is configured.
func (l *AppLimit) HasSessionLimit() bool {
	return l != nil && l.SessionLimitEnabled && l.SessionLimitCount != nil
}

func fromRecord(r *storage.LimitRecord) AppLimit {
	return AppLimit{
		AppID:               r.PackageName,
		AppName:             r.AppName,
		TimeLimitMinutes:    copyValue(r.TimeLimitValue),
		TimeLimitEnabled:    r.TimeLimitEnabled,
		SessionLimitCount:   copyValue(r.SessionLimitValue),
		SessionLimitEnabled: r.SessionLimitEnabled,
		Public:              r.IsPublic,
		UpdatedAt:           r.UpdatedAt,
	}
}

// clone returns a copy that shares no pointers with l.
func (l AppLimit) clone() AppLimit {
	l.TimeLimitMinutes = copyValue(l.TimeLimitMinutes)
	l.SessionLimitCount = copyValue(l.SessionLimitCount)
	return l
}

func copyValue(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
