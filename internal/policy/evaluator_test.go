package policy

import (
	"context"
	"testing"
	"time"

	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32(v uint32) *uint32 { return &v }

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(zerolog.Nop())
	require.NoError(t, err)
	return e
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		usage        TodayUsage
		limit        *limits.AppLimit
		wantTime     bool
		wantSessions bool
	}{
		{
			name:     "time limit reached exactly",
			usage:    TodayUsage{AppID: "app", Duration: 60 * time.Minute},
			limit:    &limits.AppLimit{TimeLimitMinutes: u32(60), TimeLimitEnabled: true},
			wantTime: true,
		},
		{
			name:  "time limit one millisecond short",
			usage: TodayUsage{AppID: "app", Duration: 60*time.Minute - time.Millisecond},
			limit: &limits.AppLimit{TimeLimitMinutes: u32(60), TimeLimitEnabled: true},
		},
		{
			name:  "disabled time limit",
			usage: TodayUsage{AppID: "app", Duration: 10 * time.Hour},
			limit: &limits.AppLimit{TimeLimitMinutes: u32(60), TimeLimitEnabled: false},
		},
		{
			name:  "enabled without value",
			usage: TodayUsage{AppID: "app", Duration: 10 * time.Hour, Sessions: 50},
			limit: &limits.AppLimit{TimeLimitEnabled: true, SessionLimitEnabled: true},
		},
		{
			name:         "session limit reached",
			usage:        TodayUsage{AppID: "app", Sessions: 3},
			limit:        &limits.AppLimit{SessionLimitCount: u32(3), SessionLimitEnabled: true},
			wantSessions: true,
		},
		{
			name:         "both exceeded",
			usage:        TodayUsage{AppID: "app", Duration: 2 * time.Hour, Sessions: 9},
			limit:        &limits.AppLimit{TimeLimitMinutes: u32(60), TimeLimitEnabled: true, SessionLimitCount: u32(3), SessionLimitEnabled: true},
			wantTime:     true,
			wantSessions: true,
		},
		{
			name:     "zero minute limit restricts immediately",
			usage:    TodayUsage{AppID: "app"},
			limit:    &limits.AppLimit{TimeLimitMinutes: u32(0), TimeLimitEnabled: true},
			wantTime: true,
		},
		{
			name:  "no limit",
			usage: TodayUsage{AppID: "app", Duration: 24 * time.Hour, Sessions: 1000},
			limit: nil,
		},
	}

	e := newTestEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Evaluate(context.Background(), tt.usage, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, "app", d.AppID)
			assert.Equal(t, tt.wantTime, d.TimeLimitExceeded)
			assert.Equal(t, tt.wantSessions, d.SessionLimitExceeded)
			assert.Equal(t, tt.wantTime || tt.wantSessions, d.IsRestricted)
		})
	}
}

func TestEvaluate_NoLimitNeverRestricts(t *testing.T) {
	e := newTestEvaluator(t)
	for _, d := range []time.Duration{0, time.Minute, 1000 * time.Hour} {
		for _, s := range []uint32{0, 1, 1<<32 - 1} {
			decision, err := e.Evaluate(context.Background(), TodayUsage{Duration: d, Sessions: s}, nil)
			require.NoError(t, err)
			assert.False(t, decision.IsRestricted)
		}
	}
}

func TestEvaluate_LargeValues(t *testing.T) {
	e := newTestEvaluator(t)
	limit := &limits.AppLimit{
		TimeLimitMinutes: u32(1<<32 - 1), TimeLimitEnabled: true,
		SessionLimitCount: u32(1<<32 - 1), SessionLimitEnabled: true,
	}

	d, err := e.Evaluate(context.Background(), TodayUsage{Duration: 1000 * time.Hour, Sessions: 1<<32 - 2}, limit)
	require.NoError(t, err)
	assert.False(t, d.IsRestricted)

	d, err = e.Evaluate(context.Background(), TodayUsage{Sessions: 1<<32 - 1}, limit)
	require.NoError(t, err)
	assert.True(t, d.SessionLimitExceeded)
	assert.False(t, d.TimeLimitExceeded)
}

func TestEvaluateAll(t *testing.T) {
	snapshot := map[string]limits.AppLimit{
		"limited": {AppID: "limited", SessionLimitCount: u32(1), SessionLimitEnabled: true},
	}
	decisions, err := newTestEvaluator(t).EvaluateAll(context.Background(), []TodayUsage{
		TodayOf(usage.AppUsage{AppID: "limited", TodaySessions: 1}),
		TodayOf(usage.AppUsage{AppID: "free", TodaySessions: 10}),
	}, snapshot)
	require.NoError(t, err)

	assert.True(t, decisions["limited"].IsRestricted)
	assert.Equal(t, []Reason{ReasonSessions}, decisions["limited"].Reasons())
	assert.False(t, decisions["free"].IsRestricted)
	assert.Empty(t, decisions["free"].Reasons())
}

func TestRemaining(t *testing.T) {
	limit := &limits.AppLimit{
		TimeLimitMinutes: u32(60), TimeLimitEnabled: true,
		SessionLimitCount: u32(3), SessionLimitEnabled: true,
	}

	b := Remaining(TodayUsage{Duration: 45 * time.Minute, Sessions: 1}, limit)
	assert.True(t, b.HasTime)
	assert.Equal(t, 15*time.Minute, b.TimeRemaining)
	assert.True(t, b.HasSessions)
	assert.Equal(t, uint32(2), b.SessionsRemaining)

	b = Remaining(TodayUsage{Duration: 2 * time.Hour, Sessions: 7}, limit)
	assert.Zero(t, b.TimeRemaining)
	assert.Zero(t, b.SessionsRemaining)

	assert.Equal(t, Budget{}, Remaining(TodayUsage{Duration: time.Hour}, nil))
}
