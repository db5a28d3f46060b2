// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	referenceTime    = time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC)
	shortTestTimeout = 10 * time.Millisecond
	fireTestTimeout  = 50 * time.Millisecond
)

func assertReceivesTime(t *testing.T, ch <-chan time.Time, expectedTime time.Time, timeout time.Duration, msgAndArgs ...interface{}) {
	t.Helper()
	select {
	case actualTime := <-ch:
		assert.True(t, expectedTime.Equal(actualTime), "Received time %v, expected %v. %s", actualTime, expectedTime, msgAndArgs)
	case <-time.After(timeout):
		t.Fatalf("Timeout waiting for time on channel. Expected %v. %s", expectedTime, msgAndArgs)
	}
}

func assertNotReceivesTime(t *testing.T, ch <-chan time.Time, timeout time.Duration, msgAndArgs ...interface{}) {
	t.Helper()
	select {
	case receivedTime := <-ch:
		t.Fatalf("Expected no time on channel, but received %v. %s", receivedTime, msgAndArgs)
	case <-time.After(timeout):
	}
}

func TestSimulatedClockNow(t *testing.T) {
	testCases := []struct {
		name             string
		initialTimeSetup func(sc *SimulatedClock)
		expectedTime     time.Time
	}{
		{
			name:             "InitialState_IsReferenceTime",
			initialTimeSetup: func(sc *SimulatedClock) {},
			expectedTime:     referenceTime,
		},
		{
			name: "AfterSetTime_ReturnsSetTime",
			initialTimeSetup: func(sc *SimulatedClock) {
				sc.SetTime(referenceTime)
			},
			expectedTime: referenceTime,
		},
		{
			name: "AfterAdvanceTime_ReturnsAdvancedTime",
			initialTimeSetup: func(sc *SimulatedClock) {
				sc.SetTime(referenceTime)
				sc.AdvanceTime(time.Hour)
			},
			expectedTime: referenceTime.Add(time.Hour),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clk := NewSimulatedClock(referenceTime)
			tc.initialTimeSetup(clk)

			now := clk.Now()

			assert.True(t, now.Equal(tc.expectedTime), "clk.Now() returned %v, expected %v", now, tc.expectedTime)
		})
	}
}

func TestSimulatedClockSetTime(t *testing.T) {
	testCases := []struct {
		name             string
		initialTimeSetup func(sc *SimulatedClock)
		timeToSet        time.Time
		expectedAfter    time.Time
	}{
		{
			name:             "SetFromReferenceTime",
			initialTimeSetup: func(sc *SimulatedClock) {},
			timeToSet:        referenceTime,
			expectedAfter:    referenceTime,
		},
		{
			name: "OverwriteExistingTime",
			initialTimeSetup: func(sc *SimulatedClock) {
				sc.SetTime(referenceTime.Add(-time.Hour))
			},
			timeToSet:     referenceTime,
			expectedAfter: referenceTime,
		},
		{
			name:             "SetToZeroTime",
			initialTimeSetup: func(sc *SimulatedClock) { sc.SetTime(referenceTime) },
			timeToSet:        time.Time{},
			expectedAfter:    time.Time{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clk := NewSimulatedClock(referenceTime)
			tc.initialTimeSetup(clk)

			clk.SetTime(tc.timeToSet)

			assert.True(t, clk.Now().Equal(tc.expectedAfter), "After SetTime, clk.Now() was %v, expected %v", clk.Now(), tc.expectedAfter)
		})
	}
}

func TestSimulatedClockAdvanceTime(t *testing.T) {
	testCases := []struct {
		name         string
		initialTime  time.Time
		advanceBy    time.Duration
		expectedTime time.Time
	}{
		{
			name:         "AdvancePositiveDuration",
			initialTime:  referenceTime,
			advanceBy:    5 * time.Minute,
			expectedTime: referenceTime.Add(5 * time.Minute),
		},
		{
			name:         "AdvanceNegativeDuration",
			initialTime:  referenceTime,
			advanceBy:    -2 * time.Hour,
			expectedTime: referenceTime.Add(-2 * time.Hour),
		},
		{
			name:         "AdvanceByZeroDuration",
			initialTime:  referenceTime,
			advanceBy:    0,
			expectedTime: referenceTime,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clk := NewSimulatedClock(referenceTime)
			clk.SetTime(tc.initialTime)

			clk.AdvanceTime(tc.advanceBy)

			assert.True(t, clk.Now().Equal(tc.expectedTime), "After AdvanceTime, clk.Now() was %v, expected %v", clk.Now(), tc.expectedTime)
		})
	}
}

func TestSimulatedClockAfterShouldFire(t *testing.T) {
	testCases := []struct {
		name          string
		afterDuration time.Duration
		action        func(sc *SimulatedClock)
	}{
		{
			name:          "ZeroDuration_FiresImmediately",
			afterDuration: 0,
			action:        func(sc *SimulatedClock) {},
		},
		{
			name:          "NegativeDuration_FiresImmediately",
			afterDuration: -5 * time.Second,
			action:        func(sc *SimulatedClock) {},
		},
		{
			name:          "PositiveDuration_Fires_WhenTimeAdvancedPastDuration",
			afterDuration: 10 * time.Second,
			action: func(sc *SimulatedClock) {
				sc.AdvanceTime(15 * time.Second)
			},
		},
		{
			name:          "PositiveDuration_Fires_WhenTimeSetPastDuration",
			afterDuration: 10 * time.Second,
			action: func(sc *SimulatedClock) {
				sc.SetTime(referenceTime.Add(15 * time.Second))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clk := NewSimulatedClock(referenceTime)
			clockTimeAtAfterCall := clk.Now()

			ch := clk.After(tc.afterDuration)
			require.NotNil(t, ch)

			if tc.action != nil {
				tc.action(clk)
			}

			var expectedFireTimeOnChannel time.Time
			if tc.afterDuration <= 0 {
				expectedFireTimeOnChannel = clockTimeAtAfterCall
			} else {
				expectedFireTimeOnChannel = clockTimeAtAfterCall.Add(tc.afterDuration)
			}

			assertReceivesTime(t, ch, expectedFireTimeOnChannel, fireTestTimeout,
				"Expected timer to fire with time %v", expectedFireTimeOnChannel)
		})
	}
}

func TestSimulatedClockAfterShouldNotFire(t *testing.T) {
	testCases := []struct {
		name          string
		afterDuration time.Duration
		action        func(sc *SimulatedClock)
	}{
		{
			name:          "PositiveDuration_DoesNotFire_WhenTimeAdvancedBeforeDuration",
			afterDuration: 10 * time.Second,
			action: func(sc *SimulatedClock) {
				sc.AdvanceTime(5 * time.Second)
			},
		},
		{
			name:          "PositiveDuration_DoesNotFire_WhenTimeSetBeforeDuration",
			afterDuration: 10 * time.Second,
			action: func(sc *SimulatedClock) {
				sc.SetTime(referenceTime.Add(5 * time.Second))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clk := NewSimulatedClock(referenceTime)

			ch := clk.After(tc.afterDuration)
			require.NotNil(t, ch)

			if tc.action != nil {
				tc.action(clk)
			}

			assertNotReceivesTime(t, ch, shortTestTimeout, "Expected timer not to fire")
		})
	}
}
