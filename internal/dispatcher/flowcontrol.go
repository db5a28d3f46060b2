package dispatcher

import "time"

// maxSleepQuanta is MAX-SLEEP from spec.md §4.5: 1 second expressed in
// 20ms quanta (50 * 20ms = 1s).
const maxSleepQuanta = 50

// flowControlQuantum is the 20ms step size spec.md §4.5's flow-control
// routine sleeps in.
const flowControlQuantum = 20 * time.Millisecond

// FlowControl implements spec.md §4.5's flow-control routine: it nudges a
// sleep-quanta counter up or down based on the CPU usage band reported by
// the Monitor, and the dispatcher sleeps that many 20ms quanta between
// popped items. Grounded on the teacher's small stateful-counter style
// (internal/limiter.Limiter); a *FlowControl zero value is usable.
type FlowControl struct {
	sleepCount int
}

// Tick folds one usage sample into the counter and returns the resulting
// sleep duration. usage follows spec.md §4.5's bands: >=1.5 -> +5,
// >=1.2 -> +2, >=1.0 -> +1, [0.9,1.0) -> 0, [0.6,0.9) -> -1, [0.3,0.6) -> -2,
// <0.3 -> -5, clamped to [0, MAX-SLEEP].
func (f *FlowControl) Tick(usage float64) time.Duration {
	delta := bandDelta(usage)
	f.sleepCount += delta
	if f.sleepCount < 0 {
		f.sleepCount = 0
	}
	if f.sleepCount > maxSleepQuanta {
		f.sleepCount = maxSleepQuanta
	}
	return time.Duration(f.sleepCount) * flowControlQuantum
}

func bandDelta(usage float64) int {
	switch {
	case usage >= 1.5:
		return 5
	case usage >= 1.2:
		return 2
	case usage >= 1.0:
		return 1
	case usage >= 0.9:
		return 0
	case usage >= 0.6:
		return -1
	case usage >= 0.3:
		return -2
	default:
		return -5
	}
}

// SleepQuanta reports the current counter value, for tests/metrics.
func (f *FlowControl) SleepQuanta() int { return f.sleepCount }
