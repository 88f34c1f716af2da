package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/focuspact/focuspact/internal/storage"
)

// parseLimitRecord converts a Redis hash to LimitRecord
func parseLimitRecord(data map[string]string) (*storage.LimitRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	timeValue, err := parseOptionalUint32(data["time_limit_value"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse time_limit_value: %w", err)
	}

	sessionValue, err := parseOptionalUint32(data["session_limit_value"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse session_limit_value: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, data["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &storage.LimitRecord{
		ID:                  data["id"],
		UserID:              data["user_id"],
		PackageName:         data["package_name"],
		AppName:             data["app_name"],
		TimeLimitValue:      timeValue,
		SessionLimitValue:   sessionValue,
		TimeLimitEnabled:    data["time_limit_enabled"] == "1",
		SessionLimitEnabled: data["session_limit_enabled"] == "1",
		IsPublic:            data["is_public"] == "1",
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}, nil
}

// flatToMap converts an HGETALL reply returned from Lua into a map
func flatToMap(values []string) map[string]string {
	data := make(map[string]string, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		data[values[i]] = values[i+1]
	}
	return data
}

func parseOptionalUint32(s string) (*uint32, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil, err
	}
	u := uint32(v)
	return &u, nil
}

func formatOptionalUint32(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

// optionalFlag encodes an optional bool; the empty string means unchanged
func optionalFlag(b *bool) string {
	if b == nil {
		return ""
	}
	return boolFlag(*b)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Journal members are "{seq}|{kind}|{appID}". The zero-padded sequence keeps
// members with an equal score in append order.
func formatEventMember(seq int64, ev storage.EventRecord) string {
	return fmt.Sprintf("%020d|%s|%s", seq, ev.Kind, ev.AppID)
}

func parseEventMember(member string, score float64) (storage.EventRecord, error) {
	parts := strings.SplitN(member, "|", 3)
	if len(parts) != 3 {
		return storage.EventRecord{}, fmt.Errorf("malformed journal member: %q", member)
	}
	return storage.EventRecord{
		AppID:     parts[2],
		Kind:      parts[1],
		Timestamp: time.UnixMilli(int64(score)),
	}, nil
}
