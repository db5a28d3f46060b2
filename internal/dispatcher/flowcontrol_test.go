package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFlowControlClampsUnderSustainedLoad is spec.md §8 scenario 6:
// simulated CPU level 1.6 for 10 consecutive samples clamps sleepCount at
// MAX-SLEEP (50) within ~10 samples, then 0.2 for 10 samples returns it to
// 0 within ~10 samples.
func TestFlowControlClampsUnderSustainedLoad(t *testing.T) {
	var fc FlowControl
	for i := 0; i < 10; i++ {
		fc.Tick(1.6)
	}
	assert.Equal(t, maxSleepQuanta, fc.SleepQuanta())

	for i := 0; i < 10; i++ {
		fc.Tick(0.2)
	}
	assert.Equal(t, 0, fc.SleepQuanta())
}

func TestFlowControlBands(t *testing.T) {
	cases := []struct {
		usage float64
		delta int
	}{
		{1.5, 5}, {2.0, 5}, {1.2, 2}, {1.3, 2}, {1.0, 1}, {1.1, 1},
		{0.95, 0}, {0.9, 0}, {0.7, -1}, {0.6, -1}, {0.4, -2}, {0.3, -2}, {0.1, -5},
	}
	for _, c := range cases {
		assert.Equal(t, c.delta, bandDelta(c.usage), "usage=%v", c.usage)
	}
}

func TestFlowControlNeverNegative(t *testing.T) {
	var fc FlowControl
	fc.Tick(0.0)
	assert.Equal(t, 0, fc.SleepQuanta())
}
