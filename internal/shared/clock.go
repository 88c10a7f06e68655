package shared

import "time"

// Clock abstracts time for services so lifecycle rules (overdue detection,
// late fees, snapshot dates) are testable with a fixed instant.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// FixedClock always reports the same instant.
type FixedClock struct {
	Instant time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.Instant }
