package usage

import "time"

// Clock provides the wall-clock "now" used for calendar-day boundaries.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time in a fixed location.
type RealClock struct {
	Location *time.Location
}

// Now returns the current system time.
func (c RealClock) Now() time.Time {
	if c.Location != nil {
		return time.Now().In(c.Location)
	}
	return time.Now()
}

// TestClock provides fixed time for testing.
type TestClock struct {
	CurrentTime time.Time
}

// Now returns the test time.
func (t *TestClock) Now() time.Time {
	return t.CurrentTime
}
