package clock

import "time"

// Clock abstracts time so callers can inject RealClock in production and
// SimulatedClock or FakeClock in tests, the same seam the teacher's
// RealClock/SimulatedClock/FakeClock trio is built to satisfy.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After waits for the duration to elapse and then sends the current
	// time on the returned channel.
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = (*SimulatedClock)(nil)
	_ Clock = (*FakeClock)(nil)
)
