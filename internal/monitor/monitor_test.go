package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/focuspact/focuspact/internal/limits"
	"github.com/focuspact/focuspact/internal/policy"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

func newTestEvaluator(t *testing.T) *policy.Evaluator {
	t.Helper()
	e, err := policy.NewEvaluator(zerolog.Nop())
	require.NoError(t, err)
	return e
}

type fakeUsage struct {
	clock *usage.TestClock
	apps  []usage.AppUsage
	err   error
	wait  <-chan struct{}
	calls atomic.Int32
}

func (f *fakeUsage) GetUsageStats(ctx context.Context, start, end time.Time) (*usage.Stats, error) {
	f.calls.Add(1)
	if f.wait != nil {
		select {
		case <-f.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &usage.Stats{Start: start, End: end, Now: f.clock.Now(), Apps: f.apps}, nil
}

func (f *fakeUsage) Clock() usage.Clock { return f.clock }

type fakeLimits struct {
	limits  map[string]limits.AppLimit
	err     error
	started chan struct{}
}

func (f *fakeLimits) Snapshot(ctx context.Context) (map[string]limits.AppLimit, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.limits, nil
}

func u32(v uint32) *uint32 { return &v }

func newFixture() (*fakeUsage, *fakeLimits) {
	u := &fakeUsage{
		clock: &usage.TestClock{CurrentTime: testNow},
		apps: []usage.AppUsage{
			{AppID: "chat", TodayDuration: 45 * time.Minute, TodaySessions: 2, LastUsedAt: testNow.Add(-time.Hour)},
			{AppID: "maps", TodayDuration: 10 * time.Minute, TodaySessions: 5, LastUsedAt: testNow.Add(-2 * time.Hour)},
			{AppID: "news", YesterdayDuration: 20 * time.Minute, YesterdaySessions: 1, LastUsedAt: testNow.AddDate(0, 0, -1)},
		},
	}
	l := &fakeLimits{limits: map[string]limits.AppLimit{
		"chat": {AppID: "chat", TimeLimitMinutes: u32(30), TimeLimitEnabled: true},
		"maps": {AppID: "maps", TimeLimitMinutes: u32(60), TimeLimitEnabled: true, SessionLimitCount: u32(5), SessionLimitEnabled: true},
	}}
	return u, l
}

func TestPoll_EvaluatesPairedResults(t *testing.T) {
	u, l := newFixture()
	m := New(u, l, newTestEvaluator(t), 2, zerolog.Nop())

	snap, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Apps, 3)
	assert.Same(t, snap, m.Latest())
	assert.Equal(t, usage.StartOfDay(testNow).AddDate(0, 0, -1), snap.Start)
	assert.Equal(t, testNow, snap.End)

	chat, ok := snap.Find("chat")
	require.True(t, ok)
	assert.True(t, chat.Decision.TimeLimitExceeded)
	assert.True(t, chat.Decision.IsRestricted)
	assert.Equal(t, 45*time.Minute, chat.Projection.Durations[usage.Today])

	maps, ok := snap.Find("maps")
	require.True(t, ok)
	assert.False(t, maps.Decision.TimeLimitExceeded)
	assert.True(t, maps.Decision.SessionLimitExceeded)
	assert.Equal(t, 50*time.Minute, maps.Budget.TimeRemaining)

	news, ok := snap.Find("news")
	require.True(t, ok)
	assert.Nil(t, news.Limit)
	assert.False(t, news.Decision.IsRestricted)

	assert.Len(t, snap.Restricted(), 2)
}

func TestPoll_RunsHalvesConcurrently(t *testing.T) {
	u, l := newFixture()
	// The usage query only completes once the limit snapshot has started.
	l.started = make(chan struct{})
	u.wait = l.started
	m := New(u, l, newTestEvaluator(t), 2, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.Poll(ctx)
	require.NoError(t, err)
}

func TestPoll_FailureKeepsPreviousSnapshot(t *testing.T) {
	u, l := newFixture()
	m := New(u, l, newTestEvaluator(t), 2, zerolog.Nop())

	first, err := m.Poll(context.Background())
	require.NoError(t, err)

	l.err = storage.ErrTransport
	_, err = m.Poll(context.Background())
	assert.ErrorIs(t, err, storage.ErrTransport)
	assert.Same(t, first, m.Latest())

	l.err = nil
	u.err = errors.New("journal offline")
	_, err = m.Poll(context.Background())
	assert.Error(t, err)
	assert.Same(t, first, m.Latest())
}

func TestPoll_FirstFailureIsRecorded(t *testing.T) {
	u, l := newFixture()
	l.err = storage.ErrAuthRequired
	m := New(u, l, newTestEvaluator(t), 2, zerolog.Nop())

	_, err := m.Poll(context.Background())
	require.ErrorIs(t, err, storage.ErrAuthRequired)

	latest := m.Latest()
	require.NotNil(t, latest)
	assert.ErrorIs(t, latest.Err, storage.ErrAuthRequired)
	assert.Empty(t, latest.Apps)
	assert.False(t, latest.NoData())
}

func TestPoll_PermissionDeniedReplacesSnapshot(t *testing.T) {
	u, l := newFixture()
	m := New(u, l, newTestEvaluator(t), 2, zerolog.Nop())

	_, err := m.Poll(context.Background())
	require.NoError(t, err)

	u.err = usage.ErrPermissionDenied
	_, err = m.Poll(context.Background())
	require.ErrorIs(t, err, usage.ErrPermissionDenied)

	latest := m.Latest()
	require.NotNil(t, latest)
	assert.ErrorIs(t, latest.Err, usage.ErrPermissionDenied)
	assert.Empty(t, latest.Apps)
}

func TestPoll_CancelledDiscardsEverything(t *testing.T) {
	u, l := newFixture()
	u.wait = make(chan struct{}) // never released
	m := New(u, l, newTestEvaluator(t), 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m.Latest())
}

func TestPoll_NoData(t *testing.T) {
	u, l := newFixture()
	u.apps = nil
	m := New(u, l, newTestEvaluator(t), 1, zerolog.Nop())

	snap, err := m.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.NoData())
	assert.Equal(t, usage.StartOfDay(testNow), snap.Start)
}

func TestWindow_AtMidnight(t *testing.T) {
	u, l := newFixture()
	m := New(u, l, newTestEvaluator(t), 1, zerolog.Nop())

	midnight := usage.StartOfDay(testNow)
	start, end := m.Window(midnight)
	assert.Equal(t, midnight, start)
	assert.True(t, start.Before(end))
}

func TestRun_PollsOnTrigger(t *testing.T) {
	u, l := newFixture()
	m := New(u, l, newTestEvaluator(t), 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return u.calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	m.Trigger()
	require.Eventually(t, func() bool { return u.calls.Load() == 2 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
