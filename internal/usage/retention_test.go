package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	owner   string
	cutoff  time.Time
	removed int
	err     error
}

func (f *fakePruner) DeleteEventsBefore(ctx context.Context, owner string, cutoff time.Time) (int, error) {
	f.owner, f.cutoff = owner, cutoff
	return f.removed, f.err
}

func TestRetentionScheduler_NextRun(t *testing.T) {
	rs, err := NewRetentionScheduler(&fakePruner{}, "owner", 35, "03:00", nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, at(10, 3, 0), rs.NextRun(at(10, 1, 0)))
	assert.Equal(t, at(11, 3, 0), rs.NextRun(at(10, 3, 0)))
	assert.Equal(t, at(11, 3, 0), rs.NextRun(at(10, 18, 0)))
}

func TestRetentionScheduler_Prune(t *testing.T) {
	pruner := &fakePruner{removed: 12}
	clock := &TestClock{CurrentTime: at(20, 3, 0)}

	rs, err := NewRetentionScheduler(pruner, "owner", 7, "03:00", clock, zerolog.Nop())
	require.NoError(t, err)

	removed, err := rs.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, removed)
	assert.Equal(t, "owner", pruner.owner)
	assert.Equal(t, at(13, 0, 0), pruner.cutoff)
}

func TestRetentionScheduler_PruneError(t *testing.T) {
	boom := errors.New("boom")
	rs, err := NewRetentionScheduler(&fakePruner{err: boom}, "owner", 7, "03:00", nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = rs.Prune(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewRetentionScheduler_Invalid(t *testing.T) {
	_, err := NewRetentionScheduler(&fakePruner{}, "owner", 7, "3am", nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewRetentionScheduler(&fakePruner{}, "owner", 0, "03:00", nil, zerolog.Nop())
	assert.Error(t, err)
}
