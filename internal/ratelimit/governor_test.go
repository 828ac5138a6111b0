package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckBudgetSleepsBrieflyWithNoSnapshotYet(t *testing.T) {
	g := NewGovernor()

	var slept time.Duration
	g.sleepFn = func(d time.Duration) { slept = d }

	g.CheckBudget(50)

	require.Equal(t, 1*time.Second, slept, "expected the precautionary sleep before any snapshot has been observed")
}

func TestCheckBudgetSleepsThroughResetWindowWhenBelowThreshold(t *testing.T) {
	g := NewGovernor()
	g.UpdateSnapshot(10, 590, 30*time.Second)

	var slept time.Duration
	g.sleepFn = func(d time.Duration) { slept = d }

	g.CheckBudget(50)

	require.Equal(t, 35*time.Second, slept, "expected reset_in + 5s grace period")
}

func TestCheckBudgetNeverSleepsWhenBudgetIsHealthy(t *testing.T) {
	g := NewGovernor()
	g.UpdateSnapshot(500, 100, 30*time.Second)

	called := false
	g.sleepFn = func(d time.Duration) { called = true }

	g.CheckBudget(50)

	require.False(t, called, "expected no sleep when remaining budget is well above the threshold")
}

func TestCurrentReturnsACopyNotTheLiveSnapshot(t *testing.T) {
	g := NewGovernor()
	g.UpdateSnapshot(100, 50, time.Minute)

	snap := g.Current()
	require.NotNil(t, snap)

	snap.Remaining = -1
	require.Equal(t, 100, g.Current().Remaining, "mutating the returned snapshot must not affect internal state")
}

func TestCurrentIsNilBeforeAnySnapshot(t *testing.T) {
	g := NewGovernor()
	require.Nil(t, g.Current())
}
