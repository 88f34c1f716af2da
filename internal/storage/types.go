package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LimitType selects which of an app's two limits an operation targets.
type LimitType string

const (
	LimitTime     LimitType = "time"
	LimitSessions LimitType = "sessions"
)

// ParseLimitType validates and normalizes a limit type name.
func ParseLimitType(s string) (LimitType, error) {
	switch LimitType(strings.ToLower(s)) {
	case LimitTime:
		return LimitTime, nil
	case LimitSessions, "session":
		return LimitSessions, nil
	default:
		return "", fmt.Errorf("invalid limit type: %s (must be time or sessions)", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler to normalize the limit type.
func (t *LimitType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLimitType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// LimitMeta carries descriptive fields written alongside a limit. Zero
// values leave the stored fields as they are.
type LimitMeta struct {
	AppName string
	Public  *bool
}

// LimitRecord mirrors one row of the hosted app_limits table.
type LimitRecord struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	PackageName         string    `json:"package_name"`
	AppName             string    `json:"app_name"`
	TimeLimitValue      *uint32   `json:"time_limit_value"`
	SessionLimitValue   *uint32   `json:"session_limit_value"`
	TimeLimitEnabled    bool      `json:"time_limit_enabled"`
	SessionLimitEnabled bool      `json:"session_limit_enabled"`
	IsPublic            bool      `json:"is_public"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Empty reports whether neither limit type is enabled.
func (r *LimitRecord) Empty() bool {
	return !r.TimeLimitEnabled && !r.SessionLimitEnabled
}

// Apply sets or clears one limit type on the record.
func (r *LimitRecord) Apply(limitType LimitType, value *uint32) {
	var v *uint32
	if value != nil {
		copied := *value
		v = &copied
	}

	switch limitType {
	case LimitTime:
		r.TimeLimitValue = v
		r.TimeLimitEnabled = v != nil
	case LimitSessions:
		r.SessionLimitValue = v
		r.SessionLimitEnabled = v != nil
	}
}

// EventRecord is a journaled lifecycle event.
type EventRecord struct {
	AppID     string    `json:"package_name"`
	Kind      string    `json:"kind"` // "foreground" or "background"
	Timestamp time.Time `json:"timestamp"`
}
