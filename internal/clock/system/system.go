// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock returns UTC time truncated to a fixed precision so persisted
// timestamps and brief filenames agree.
type Clock struct {
	precision time.Duration
}

// New returns a Clock with millisecond precision.
func New() *Clock {
	return &Clock{precision: time.Millisecond}
}

// NewWithPrecision returns a Clock truncating to precision. Non-positive
// values disable truncation.
func NewWithPrecision(precision time.Duration) *Clock {
	return &Clock{precision: precision}
}

// Now returns the current UTC time.
func (c Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		now = now.Truncate(c.precision)
	}
	return now
}
