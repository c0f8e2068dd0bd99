package agent

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

var errUnreachable = stderrors.New("listing GPU pods: connection refused")

func TestStateInitial(t *testing.T) {
	sm := NewStateMachine(clocktesting.NewFakeClock(time.Now()), time.Minute, time.Hour)

	assert.Equal(t, StateStarting, sm.State())
	assert.Equal(t, "", sm.StateReason())
	assert.False(t, sm.InBackoff())
}

func TestStateSuccessRuns(t *testing.T) {
	sm := NewStateMachine(clocktesting.NewFakeClock(time.Now()), time.Minute, time.Hour)

	sm.HandlePollResult(nil)

	assert.Equal(t, StateRunning, sm.State())
	assert.Zero(t, sm.Failures())
}

func TestStateFailureBeforeFirstSuccessStaysStarting(t *testing.T) {
	sm := NewStateMachine(clocktesting.NewFakeClock(time.Now()), time.Minute, time.Hour)

	sm.HandlePollResult(errUnreachable)

	assert.Equal(t, StateStarting, sm.State())
	assert.Equal(t, errUnreachable.Error(), sm.StateReason())
}

func TestStateFailureAfterSuccessIsStale(t *testing.T) {
	sm := NewStateMachine(clocktesting.NewFakeClock(time.Now()), time.Minute, time.Hour)
	sm.HandlePollResult(nil)

	sm.HandlePollResult(errUnreachable)

	assert.Equal(t, StateStale, sm.State())
	assert.Equal(t, 1, sm.Failures())
	assert.False(t, sm.InBackoff(), "a single failure does not back off")
}

func TestStateBackoffAfterRepeatedFailures(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clocktesting.NewFakeClock(base)
	sm := NewStateMachine(clk, time.Minute, 10*time.Minute)
	sm.HandlePollResult(nil)

	for i := 0; i < failuresBeforeBackoff; i++ {
		sm.HandlePollResult(errUnreachable)
	}
	require.True(t, sm.InBackoff())
	assert.InDelta(t, 60.0, sm.BackoffRemaining().Seconds(), 1.0)

	clk.Step(61 * time.Second)
	assert.False(t, sm.InBackoff())
	assert.Equal(t, time.Duration(0), sm.BackoffRemaining())

	// Each further failure doubles the backoff.
	sm.HandlePollResult(errUnreachable)
	assert.InDelta(t, 120.0, sm.BackoffRemaining().Seconds(), 1.0)
}

func TestStateBackoffCapped(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sm := NewStateMachine(clk, time.Minute, 5*time.Minute)

	for i := 0; i < 20; i++ {
		sm.HandlePollResult(errUnreachable)
	}
	assert.InDelta(t, 300.0, sm.BackoffRemaining().Seconds(), 1.0)
}

func TestStateRecoveryClearsBackoff(t *testing.T) {
	sm := NewStateMachine(clocktesting.NewFakeClock(time.Now()), time.Minute, time.Hour)
	for i := 0; i < 5; i++ {
		sm.HandlePollResult(errUnreachable)
	}
	require.True(t, sm.InBackoff())

	sm.HandlePollResult(nil)

	assert.Equal(t, StateRunning, sm.State())
	assert.False(t, sm.InBackoff())
	assert.Zero(t, sm.Failures())
}

func TestStateConcurrentHandlePollResult(t *testing.T) {
	sm := NewStateMachine(clocktesting.NewFakeClock(time.Now()), time.Minute, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				sm.HandlePollResult(nil)
			} else {
				sm.HandlePollResult(errUnreachable)
			}
			_ = sm.State()
			_ = sm.InBackoff()
		}(i)
	}
	wg.Wait()

	assert.Contains(t, []MonitorState{StateRunning, StateStale}, sm.State())
}
