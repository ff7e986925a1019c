// Package clock abstracts the wall clock so time-gated logic can be tested deterministically.
package clock

import "time"

// Clock is a source for the current time.
type Clock interface {
	Now() time.Time
}

// Real is a Clock using the system clock.
//
// It also implements the clock interface required by juju/mutex.
type Real struct{}

// Now returns the current time using the system clock.
func (Real) Now() time.Time {
	return time.Now()
}

// After waits for the duration to elapse and then sends the current time on the returned channel.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Fixed is a Clock that always reports the same time. It is meant for tests.
type Fixed time.Time

// Now returns the fixed time.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// Unix returns a Fixed clock for a unix timestamp with fractional seconds.
func Unix(sec float64) Fixed {
	s := int64(sec)
	ns := int64((sec - float64(s)) * 1e9)
	return Fixed(time.Unix(s, ns))
}
