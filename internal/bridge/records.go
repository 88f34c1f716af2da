package bridge

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/policy"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// WireEvent is one transition as a device reports it.
type WireEvent struct {
	PackageName string `json:"package_name"`
	Kind        string `json:"kind"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// EventBatch is a versioned set of transitions sent by a device.
type EventBatch struct {
	SchemaVersion int         `json:"schema_version"`
	DeviceID      string      `json:"device_id,omitempty"`
	Platform      string      `json:"platform,omitempty"`
	UsageAccess   *bool       `json:"usage_access,omitempty"`
	Events        []WireEvent `json:"events"`
}

// DecodeEventBatch validates data against the event batch schema and decodes it.
func DecodeEventBatch(data []byte) (*EventBatch, error) {
	if err := validate(func() *jsonschema.Schema { return eventBatchSchema }, data); err != nil {
		return nil, err
	}

	var batch EventBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &batch, nil
}

// RawEvents converts the batch to timestamp-ordered events. Events with equal
// timestamps keep their batch order.
func (b *EventBatch) RawEvents() ([]usage.RawEvent, error) {
	events := make([]usage.RawEvent, 0, len(b.Events))
	for i, ev := range b.Events {
		kind, err := usage.ParseEventKind(ev.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrInvalidPayload, i, err)
		}
		events = append(events, usage.RawEvent{
			AppID:     ev.PackageName,
			Kind:      kind,
			Timestamp: time.UnixMilli(ev.TimestampMs),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// Timeframes maps each rollup window to a value.
type Timeframes struct {
	Today      int64 `json:"today"`
	Yesterday  int64 `json:"yesterday"`
	Week       int64 `json:"week"`
	TwoWeeks   int64 `json:"twoWeeks"`
	ThreeWeeks int64 `json:"threeWeeks"`
	Month      int64 `json:"month"`
}

// ProjectionReport is the wire form of a usage.Projection.
type ProjectionReport struct {
	Sessions    Timeframes `json:"sessions"`
	DurationsMs Timeframes `json:"durations_ms"`
}

// LimitReport is the wire form of a limits.AppLimit.
type LimitReport struct {
	AppName             string  `json:"app_name,omitempty"`
	TimeLimitMinutes    *uint32 `json:"time_limit_minutes"`
	TimeLimitEnabled    bool    `json:"time_limit_enabled"`
	SessionLimitCount   *uint32 `json:"session_limit_count"`
	SessionLimitEnabled bool    `json:"session_limit_enabled"`
	IsPublic            bool    `json:"is_public"`
}

// RestrictionReport is the wire form of a policy.Decision.
type RestrictionReport struct {
	TimeLimitExceeded    bool `json:"time_limit_exceeded"`
	SessionLimitExceeded bool `json:"session_limit_exceeded"`
	IsRestricted         bool `json:"is_restricted"`
}

// AppReport carries one app's aggregate with optional derived views.
type AppReport struct {
	PackageName               string             `json:"package_name"`
	TodayDurationMs           int64              `json:"today_duration_ms"`
	YesterdayDurationMs       int64              `json:"yesterday_duration_ms"`
	TodaySessions             uint32             `json:"today_sessions"`
	YesterdaySessions         uint32             `json:"yesterday_sessions"`
	LastUsedAtMs              int64              `json:"last_used_at_ms"`
	LastForegroundEnteredAtMs *int64             `json:"last_foreground_entered_at_ms,omitempty"`
	Projection                *ProjectionReport  `json:"projection,omitempty"`
	Limit                     *LimitReport       `json:"limit,omitempty"`
	Restriction               *RestrictionReport `json:"restriction,omitempty"`
}

// UsageReport is the versioned usage summary sent back to a device.
type UsageReport struct {
	SchemaVersion int         `json:"schema_version"`
	GeneratedAtMs int64       `json:"generated_at_ms"`
	WindowStartMs int64       `json:"window_start_ms"`
	WindowEndMs   int64       `json:"window_end_ms"`
	NoData        bool        `json:"no_data"`
	Apps          []AppReport `json:"apps"`
}

// NewAppReport builds the wire form of an aggregate.
func NewAppReport(a usage.AppUsage) AppReport {
	r := AppReport{
		PackageName:         a.AppID,
		TodayDurationMs:     a.TodayDuration.Milliseconds(),
		YesterdayDurationMs: a.YesterdayDuration.Milliseconds(),
		TodaySessions:       a.TodaySessions,
		YesterdaySessions:   a.YesterdaySessions,
		LastUsedAtMs:        a.LastUsedAt.UnixMilli(),
	}
	if a.LastForegroundEnteredAt != nil {
		ms := a.LastForegroundEnteredAt.UnixMilli()
		r.LastForegroundEnteredAtMs = &ms
	}
	return r
}

// WithProjection attaches p to the report.
func (r AppReport) WithProjection(p usage.Projection) AppReport {
	pick := func(tf usage.Timeframe) (int64, int64) {
		return int64(p.Sessions[tf]), p.Durations[tf].Milliseconds()
	}

	var pr ProjectionReport
	pr.Sessions.Today, pr.DurationsMs.Today = pick(usage.Today)
	pr.Sessions.Yesterday, pr.DurationsMs.Yesterday = pick(usage.Yesterday)
	pr.Sessions.Week, pr.DurationsMs.Week = pick(usage.Week)
	pr.Sessions.TwoWeeks, pr.DurationsMs.TwoWeeks = pick(usage.TwoWeeks)
	pr.Sessions.ThreeWeeks, pr.DurationsMs.ThreeWeeks = pick(usage.ThreeWeeks)
	pr.Sessions.Month, pr.DurationsMs.Month = pick(usage.Month)

	r.Projection = &pr
	return r
}

// WithLimit attaches the app's limit and restriction decision. A nil limit
// still records the (unrestricted) decision.
func (r AppReport) WithLimit(l *limits.AppLimit, d policy.Decision) AppReport {
	if l != nil {
		r.Limit = NewLimitReport(*l)
	}
	r.Restriction = &RestrictionReport{
		TimeLimitExceeded:    d.TimeLimitExceeded,
		SessionLimitExceeded: d.SessionLimitExceeded,
		IsRestricted:         d.IsRestricted,
	}
	return r
}

// NewLimitReport builds the wire form of a limit.
func NewLimitReport(l limits.AppLimit) *LimitReport {
	return &LimitReport{
		AppName:             l.AppName,
		TimeLimitMinutes:    l.TimeLimitMinutes,
		TimeLimitEnabled:    l.TimeLimitEnabled,
		SessionLimitCount:   l.SessionLimitCount,
		SessionLimitEnabled: l.SessionLimitEnabled,
		IsPublic:            l.Public,
	}
}

// NewUsageReport assembles a report for the window [start, end).
func NewUsageReport(generatedAt, start, end time.Time, apps []AppReport) *UsageReport {
	if apps == nil {
		apps = []AppReport{}
	}
	return &UsageReport{
		SchemaVersion: SchemaVersion,
		GeneratedAtMs: generatedAt.UnixMilli(),
		WindowStartMs: start.UnixMilli(),
		WindowEndMs:   end.UnixMilli(),
		NoData:        len(apps) == 0,
		Apps:          apps,
	}
}

// EncodeUsageReport marshals r and validates it against the report schema.
func EncodeUsageReport(r *UsageReport) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode usage report: %w", err)
	}
	if err := validate(func() *jsonschema.Schema { return usageReportSchema }, data); err != nil {
		return nil, err
	}
	return data, nil
}
