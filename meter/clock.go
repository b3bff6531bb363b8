package meter

import "time"

// DateLayout is the format of Ledger.Date.
const DateLayout = "2006-01-02"

// Clock supplies the wall-clock time used to compute the current day.
// It must report device/system local time; the reset is meant to follow the
// user's own day boundary.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now in the process's local zone.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// InLocation returns a clock reporting system time in loc.
func InLocation(loc *time.Location) Clock {
	return ClockFunc(func() time.Time { return time.Now().In(loc) })
}

// DateKey formats t as a ledger date in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// CurrentDateKey returns today's date key according to c.
func CurrentDateKey(c Clock) string {
	if c == nil {
		c = SystemClock{}
	}
	return DateKey(c.Now())
}
