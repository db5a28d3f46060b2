package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerFireAllowsOncePerWindow(t *testing.T) {
	m := NewManager(time.Minute, time.Hour)
	dims := Dims{Project: "p", Logstore: "l", Region: "r"}

	require.True(t, m.Fire(CategoryReadLogFailed, dims, "first"))
	require.False(t, m.Fire(CategoryReadLogFailed, dims, "second"), "second call within the window must be suppressed")
}

func TestManagerFireIsIndependentPerCategory(t *testing.T) {
	m := NewManager(time.Minute, time.Hour)
	dims := Dims{Project: "p", Logstore: "l", Region: "r"}

	require.True(t, m.Fire(CategoryReadLogFailed, dims, "x"))
	require.True(t, m.Fire(CategoryRotateDetected, dims, "y"), "a different category must not be suppressed by another category's window")
}

func TestManagerFireIsIndependentPerDims(t *testing.T) {
	m := NewManager(time.Minute, time.Hour)
	dimsA := Dims{Project: "a", Logstore: "l", Region: "r"}
	dimsB := Dims{Project: "b", Logstore: "l", Region: "r"}

	require.True(t, m.Fire(CategoryReadLogFailed, dimsA, "x"))
	require.True(t, m.Fire(CategoryReadLogFailed, dimsB, "y"), "a different project must get its own alarm budget")
}

func TestDimsKeyDistinguishesAllFields(t *testing.T) {
	base := Dims{Project: "p", Logstore: "l", Region: "r"}
	other := Dims{Project: "p", Logstore: "l2", Region: "r"}
	require.NotEqual(t, base.key(CategoryReadLogFailed), other.key(CategoryReadLogFailed))
	require.NotEqual(t, base.key(CategoryReadLogFailed), base.key(CategoryRotateDetected))
}
