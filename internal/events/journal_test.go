package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/focuspact/focuspact/internal/config"
	"github.com/focuspact/focuspact/internal/storage"
	"github.com/focuspact/focuspact/internal/storage/redis"
	"github.com/focuspact/focuspact/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) (*JournalSource, storage.EventStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := redis.Open(config.RedisConfig{
		Host:         mr.Addr(),
		PoolSize:     2,
		DialTimeout:  "1s",
		ReadTimeout:  "1s",
		WriteTimeout: "1s",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewJournalSource(store.Events(), "device-1", zerolog.Nop()), store.Events()
}

func TestJournalSource_PermissionGate(t *testing.T) {
	src, _ := newTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	_, err := src.QueryEvents(ctx, now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, usage.ErrPermissionDenied)

	state, err := src.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, state)

	require.NoError(t, src.SetPermission(ctx, true))

	state, err = src.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, PermissionGranted, state)

	events, err := src.QueryEvents(ctx, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestJournalSource_RecordAndQuery(t *testing.T) {
	src, store := newTestJournal(t)
	ctx := context.Background()
	require.NoError(t, src.SetPermission(ctx, true))

	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	require.NoError(t, src.Record(ctx, "test", []usage.RawEvent{
		{AppID: "app", Kind: usage.Foreground, Timestamp: base},
		{AppID: "app", Kind: usage.Background, Timestamp: base.Add(5 * time.Minute)},
	}))

	// Entries with an unknown kind are skipped
	require.NoError(t, store.AppendEvents(ctx, "device-1", []storage.EventRecord{
		{AppID: "app", Kind: "resumed", Timestamp: base.Add(time.Minute)},
	}))

	events, err := src.QueryEvents(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, usage.Foreground, events[0].Kind)
	assert.Equal(t, usage.Background, events[1].Kind)
	assert.True(t, events[1].Timestamp.Equal(base.Add(5*time.Minute)))
}

func TestUnavailableSource(t *testing.T) {
	var src Source = UnavailableSource{}
	ctx := context.Background()

	_, err := src.QueryEvents(ctx, time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, usage.ErrUnavailable)

	_, err = src.HasUsagePermission(ctx)
	assert.ErrorIs(t, err, usage.ErrUnavailable)

	state, err := src.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, PermissionUnavailable, state)
}

func TestPermissionState_String(t *testing.T) {
	assert.Equal(t, "granted", PermissionGranted.String())
	assert.Equal(t, "denied", PermissionDenied.String())
	assert.Equal(t, "unavailable", PermissionUnavailable.String())

	text, err := PermissionGranted.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "granted", string(text))
}

var _ Source = (*JournalSource)(nil)
