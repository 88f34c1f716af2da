package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_RecentUsage(t *testing.T) {
	now := at(10, 12, 0)
	a := AppUsage{
		AppID:             "app",
		TodayDuration:     20 * time.Minute,
		YesterdayDuration: 40 * time.Minute,
		TodaySessions:     2,
		YesterdaySessions: 3,
		LastUsedAt:        at(10, 11, 0),
	}

	p := Project(a, now)

	assert.Equal(t, uint32(2), p.Sessions[Today])
	assert.Equal(t, uint32(3), p.Sessions[Yesterday])
	assert.Equal(t, 20*time.Minute, p.Durations[Today])
	assert.Zero(t, p.Durations[Yesterday], "last use was today")
	for _, tf := range []Timeframe{Week, TwoWeeks, ThreeWeeks, Month} {
		assert.Equal(t, uint32(5), p.Sessions[tf], tf)
		assert.Equal(t, time.Hour, p.Durations[tf], tf)
	}
}

func TestProject_StaleUsageOutsideWeek(t *testing.T) {
	now := at(20, 12, 0)
	a := AppUsage{
		AppID:         "app",
		TodayDuration: 10 * time.Minute,
		TodaySessions: 1,
		LastUsedAt:    at(10, 12, 0),
	}

	p := Project(a, now)

	assert.Zero(t, p.Durations[Week])
	assert.Zero(t, p.Sessions[Week])
	assert.Equal(t, 10*time.Minute, p.Durations[TwoWeeks])
	assert.Equal(t, uint32(1), p.Sessions[Month])
	assert.Zero(t, p.Durations[Today])
	assert.Equal(t, uint32(1), p.Sessions[Today], "today sessions are not recency gated")
}

func TestProject_LastUsedYesterday(t *testing.T) {
	now := at(10, 12, 0)
	a := AppUsage{
		YesterdayDuration: 15 * time.Minute,
		YesterdaySessions: 1,
		LastUsedAt:        at(9, 22, 0),
	}

	p := Project(a, now)
	assert.Equal(t, 15*time.Minute, p.Durations[Yesterday])
	assert.Zero(t, p.Durations[Today])
}

func TestIsWithinLastNDays_CalendarBoundary(t *testing.T) {
	now := at(10, 0, 5)

	assert.True(t, IsWithinLastNDays(at(3, 0, 0), now, 7), "exactly N days ago is inclusive")
	assert.False(t, IsWithinLastNDays(at(2, 23, 59), now, 7))
	assert.True(t, IsWithinLastNDays(at(10, 0, 0), now, 0))
	assert.False(t, IsWithinLastNDays(at(9, 23, 59), now, 0))
}

func TestIsTodayAndYesterday(t *testing.T) {
	now := at(10, 0, 30)
	assert.True(t, IsToday(at(10, 0, 0), now))
	assert.False(t, IsToday(at(9, 23, 59), now))
	assert.True(t, IsYesterday(at(9, 23, 59), now))
	assert.False(t, IsYesterday(at(8, 23, 59), now))

	// Comparisons happen in now's location
	utc := at(10, 1, 0).UTC() // 23:00 on the 9th in UTC
	assert.True(t, IsToday(utc, now))
}

func TestTimeframes(t *testing.T) {
	days := make([]int, 0, len(Timeframes))
	for _, tf := range Timeframes {
		days = append(days, tf.LookbackDays())
	}
	assert.Equal(t, []int{0, 1, 7, 14, 21, 30}, days)

	tf, err := ParseTimeframe("twoWeeks")
	require.NoError(t, err)
	assert.Equal(t, TwoWeeks, tf)

	_, err = ParseTimeframe("fortnight")
	assert.Error(t, err)
}
