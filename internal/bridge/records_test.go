package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/policy"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBatch = `{
  "schema_version": 1,
  "device_id": "pixel-7",
  "platform": "android",
  "usage_access": true,
  "events": [
    {"package_name": "com.example.chat", "kind": "background", "timestamp_ms": 1700000600000},
    {"package_name": "com.example.chat", "kind": "foreground", "timestamp_ms": 1700000000000},
    {"package_name": "com.example.maps", "kind": "foreground", "timestamp_ms": 1700000000000}
  ]
}`

func TestDecodeEventBatch(t *testing.T) {
	batch, err := DecodeEventBatch([]byte(validBatch))
	require.NoError(t, err)
	assert.Equal(t, "pixel-7", batch.DeviceID)
	require.NotNil(t, batch.UsageAccess)
	assert.True(t, *batch.UsageAccess)

	events, err := batch.RawEvents()
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Sorted by timestamp, ties keep batch order
	assert.Equal(t, "com.example.chat", events[0].AppID)
	assert.Equal(t, usage.Foreground, events[0].Kind)
	assert.Equal(t, "com.example.maps", events[1].AppID)
	assert.Equal(t, usage.Background, events[2].Kind)
	assert.Equal(t, int64(1700000600000), events[2].Timestamp.UnixMilli())
}

func TestDecodeEventBatch_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"malformed", `{"schema_version": 1,`, ErrInvalidPayload},
		{"missing version", `{"events": []}`, ErrInvalidPayload},
		{"future version", `{"schema_version": 2, "events": []}`, ErrUnsupportedVersion},
		{"string version", `{"schema_version": "1", "events": []}`, ErrUnsupportedVersion},
		{"bad kind", `{"schema_version": 1, "events": [{"package_name": "a", "kind": "paused", "timestamp_ms": 1}]}`, ErrInvalidPayload},
		{"missing timestamp", `{"schema_version": 1, "events": [{"package_name": "a", "kind": "foreground"}]}`, ErrInvalidPayload},
		{"negative timestamp", `{"schema_version": 1, "events": [{"package_name": "a", "kind": "foreground", "timestamp_ms": -5}]}`, ErrInvalidPayload},
		{"fractional timestamp", `{"schema_version": 1, "events": [{"package_name": "a", "kind": "foreground", "timestamp_ms": 1.5}]}`, ErrInvalidPayload},
		{"empty package", `{"schema_version": 1, "events": [{"package_name": "", "kind": "foreground", "timestamp_ms": 1}]}`, ErrInvalidPayload},
		{"unknown field", `{"schema_version": 1, "events": [], "extras": {}}`, ErrInvalidPayload},
		{"loose bundle", `{"schema_version": 1, "events": {"a": 1}}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEventBatch([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeUsageReport(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	entered := now.Add(-5 * time.Minute)
	a := usage.AppUsage{
		AppID:                   "com.example.chat",
		TodayDuration:           90 * time.Minute,
		TodaySessions:           4,
		YesterdayDuration:       30 * time.Minute,
		YesterdaySessions:       1,
		LastUsedAt:              now.Add(-5 * time.Minute),
		LastForegroundEnteredAt: &entered,
	}
	minutes := uint32(60)
	limit := &limits.AppLimit{AppID: a.AppID, AppName: "Chat", TimeLimitMinutes: &minutes, TimeLimitEnabled: true}
	decision := policy.Decision{AppID: a.AppID, TimeLimitExceeded: true, IsRestricted: true}

	report := NewUsageReport(now, now.Add(-24*time.Hour), now, []AppReport{
		NewAppReport(a).WithProjection(usage.Project(a, now)).WithLimit(limit, decision),
		NewAppReport(usage.AppUsage{AppID: "com.example.maps", TodayDuration: time.Minute, LastUsedAt: now}),
	})

	data, err := EncodeUsageReport(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["no_data"])

	apps := decoded["apps"].([]any)
	first := apps[0].(map[string]any)
	assert.Equal(t, float64(5400000), first["today_duration_ms"])
	assert.Equal(t, float64(entered.UnixMilli()), first["last_foreground_entered_at_ms"])
	assert.Equal(t, true, first["restriction"].(map[string]any)["is_restricted"])
	assert.Equal(t, float64(7200000), first["projection"].(map[string]any)["durations_ms"].(map[string]any)["week"])
	assert.Equal(t, "Chat", first["limit"].(map[string]any)["app_name"])

	second := apps[1].(map[string]any)
	assert.NotContains(t, second, "limit")
	assert.NotContains(t, second, "restriction")
}

func TestNewUsageReport_NoData(t *testing.T) {
	now := time.Now()
	report := NewUsageReport(now, now.Add(-time.Hour), now, nil)
	assert.True(t, report.NoData)

	data, err := EncodeUsageReport(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"apps":[]`)
}
