package clock

import "time"

// Clock is the single source of "now" for deadline math and snapshot
// timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC, matching server deadlines.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}
