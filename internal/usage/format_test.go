package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0m"},
		{59 * time.Second, "0m"},
		{45 * time.Minute, "45m"},
		{time.Hour, "1h 0m"},
		{65*time.Minute + 30*time.Second, "1h 5m"},
		{-time.Minute, "0m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestRangeFor(t *testing.T) {
	now := at(10, 15, 30)

	start, end, err := RangeFor(Today, now)
	require.NoError(t, err)
	assert.Equal(t, at(10, 0, 0), start)
	assert.Equal(t, now, end)

	start, end, err = RangeFor(Yesterday, now)
	require.NoError(t, err)
	assert.Equal(t, at(9, 0, 0), start)
	assert.Equal(t, at(10, 0, 0), end)

	start, end, err = RangeFor(Week, now)
	require.NoError(t, err)
	assert.Equal(t, at(3, 0, 0), start)
	assert.Equal(t, now, end)

	_, _, err = RangeFor(Timeframe("decade"), now)
	assert.Error(t, err)
}
