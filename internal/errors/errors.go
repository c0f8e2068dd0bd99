package errors

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Code represents a typed degradation code.
type Code string

// Degradation codes. None of these fail a poll; they mark parts of the
// report as approximate.
const (
	ErrNodeLookupFailed    Code = "NODE_LOOKUP_FAILED"
	ErrCommandLookupFailed Code = "COMMAND_LOOKUP_FAILED"
	ErrMetricsUnavailable  Code = "METRICS_UNAVAILABLE"
	ErrHistoryUnavailable  Code = "HISTORY_UNAVAILABLE"
	ErrClusterUnreachable  Code = "CLUSTER_UNREACHABLE"
)

// defaultTTL is the auto-expiry duration for degradations not re-reported.
const defaultTTL = 5 * time.Minute

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Degradation is a typed, non-fatal failure with code, component, and
// optional wrapped error.
type Degradation struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Timestamp int64  `json:"timestamp"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (d *Degradation) Error() string {
	return d.Message
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (d *Degradation) Unwrap() error {
	return d.Err
}

// String renders the degradation for terminal output.
func (d Degradation) String() string {
	return fmt.Sprintf("%s [%s]: %s", d.Code, d.Component, d.Message)
}

// Reporter receives degradations. *Collector satisfies it.
type Reporter interface {
	Report(d Degradation)
}

// Discard is a Reporter that drops everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Degradation) {}

// entry wraps a Degradation with its last-reported time for expiry tracking.
type entry struct {
	d          Degradation
	lastReport time.Time
}

// Collector is a thread-safe store for active degradations.
// Entries are keyed by Code+Component and auto-expire after 5 minutes
// if not re-reported.
type Collector struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]entry // key = string(Code) + "|" + Component
}

// NewCollector creates a Collector with the given clock.
func NewCollector(clock Clock) *Collector {
	return &Collector{
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// key builds the dedup key for a degradation.
func key(code Code, component string) string {
	return string(code) + "|" + component
}

// Report stores or refreshes a degradation. The dedup key is Code+Component.
func (c *Collector) Report(d Degradation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if d.Timestamp == 0 {
		d.Timestamp = now.UnixMilli()
	}
	c.entries[key(d.Code, d.Component)] = entry{
		d:          d,
		lastReport: now,
	}
}

// Resolve drops the degradation for code and component, if any.
func (c *Collector) Resolve(code Code, component string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key(code, component))
}

// Active returns all degradations reported within the TTL window, sorted
// by code then component.
func (c *Collector) Active() []Degradation {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	result := make([]Degradation, 0, len(c.entries))
	for k, e := range c.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(c.entries, k)
			continue
		}
		result = append(result, e.d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Code != result[j].Code {
			return result[i].Code < result[j].Code
		}
		return result[i].Component < result[j].Component
	})
	return result
}

// ActiveCodes returns a deduplicated, sorted list of active codes.
func (c *Collector) ActiveCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	seen := make(map[Code]struct{})
	codes := make([]string, 0)
	for k, e := range c.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(c.entries, k)
			continue
		}
		if _, ok := seen[e.d.Code]; !ok {
			seen[e.d.Code] = struct{}{}
			codes = append(codes, string(e.d.Code))
		}
	}
	sort.Strings(codes)
	return codes
}

// Messages returns the active degradations rendered with String.
func (c *Collector) Messages() []string {
	active := c.Active()
	out := make([]string, 0, len(active))
	for _, d := range active {
		out = append(out, d.String())
	}
	return out
}

// Clear removes all tracked degradations.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}
