// Package clock abstracts the time source used for idle tracking and
// notification throttling so tests can control it.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock with monotonic readings.
var System Clock = systemClock{}

// OrSystem returns c, or System when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System
	}
	return c
}
