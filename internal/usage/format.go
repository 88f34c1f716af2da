package usage

import (
	"fmt"
	"time"
)

// FormatDuration renders d as "1h 5m" or "45m", truncating to whole minutes.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64(d / time.Minute)
	hours := minutes / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

// RangeFor returns the query window used to display a timeframe at now.
// Yesterday ends at today's midnight; every other window ends at now.
func RangeFor(tf Timeframe, now time.Time) (start, end time.Time, err error) {
	days := tf.LookbackDays()
	if days < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid timeframe: %q", tf)
	}

	midnight := StartOfDay(now)
	if tf == Yesterday {
		return midnight.AddDate(0, 0, -1), midnight, nil
	}
	return midnight.AddDate(0, 0, -days), now, nil
}
