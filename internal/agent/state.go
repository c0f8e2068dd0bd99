package agent

import (
	"sync"
	"time"

	"github.com/kubeadapt/gpustat/internal/errors"
)

// MonitorState represents the current lifecycle state of the monitor.
type MonitorState string

// Monitor lifecycle states.
const (
	// StateStarting: no poll has succeeded yet.
	StateStarting MonitorState = "starting"
	// StateRunning: the last poll succeeded.
	StateRunning MonitorState = "running"
	// StateStale: the last poll failed and the published report is older.
	StateStale MonitorState = "stale"
)

// Consecutive failures tolerated before polls are spaced out.
const failuresBeforeBackoff = 3

// StateMachine tracks poll outcomes. After failuresBeforeBackoff consecutive
// failures it backs off, doubling from the base interval up to max.
type StateMachine struct {
	mu           sync.RWMutex
	state        MonitorState
	stateReason  string
	failures     int
	backoffUntil time.Time
	base         time.Duration
	max          time.Duration
	clock        errors.Clock
}

// NewStateMachine creates a StateMachine starting in StateStarting.
func NewStateMachine(clock errors.Clock, base, max time.Duration) *StateMachine {
	if max < base {
		max = base
	}
	return &StateMachine{
		state: StateStarting,
		clock: clock,
		base:  base,
		max:   max,
	}
}

// State returns the current monitor state.
func (sm *StateMachine) State() MonitorState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// StateReason returns the human-readable reason for the current state.
func (sm *StateMachine) StateReason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateReason
}

// Failures returns the number of consecutive failed polls.
func (sm *StateMachine) Failures() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.failures
}

// HandlePollResult records the outcome of one poll.
func (sm *StateMachine) HandlePollResult(err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err == nil {
		sm.state = StateRunning
		sm.stateReason = ""
		sm.failures = 0
		sm.backoffUntil = time.Time{}
		return
	}

	sm.failures++
	sm.stateReason = err.Error()
	if sm.state != StateStarting {
		sm.state = StateStale
	}
	if sm.failures >= failuresBeforeBackoff {
		sm.backoffUntil = sm.clock.Now().Add(sm.backoffFor(sm.failures))
	}
}

func (sm *StateMachine) backoffFor(failures int) time.Duration {
	d := sm.base
	for i := failuresBeforeBackoff; i < failures && d < sm.max; i++ {
		d *= 2
	}
	return min(d, sm.max)
}

// InBackoff reports whether polls should currently be skipped.
func (sm *StateMachine) InBackoff() bool {
	return sm.BackoffRemaining() > 0
}

// BackoffRemaining returns the time left in the current backoff, or 0.
func (sm *StateMachine) BackoffRemaining() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.backoffUntil.IsZero() {
		return 0
	}
	return max(sm.backoffUntil.Sub(sm.clock.Now()), 0)
}
