package agent

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// MemStatsProvider abstracts runtime.MemStats reading for testability.
type MemStatsProvider interface {
	ReadMemStats(m *runtime.MemStats)
}

type runtimeMemStatsProvider struct{}

func (runtimeMemStatsProvider) ReadMemStats(m *runtime.MemStats) {
	runtime.ReadMemStats(m)
}

// PressureFunc is called with the current usage and GOMEMLIMIT in bytes.
type PressureFunc func(usage, limit uint64)

// MemoryPressureMonitor polls runtime.MemStats and calls onPressure while
// usage stays above threshold * GOMEMLIMIT. Watch mode uses it to drop the
// node cache and force a GC.
type MemoryPressureMonitor struct {
	threshold  float64
	onPressure PressureFunc
	interval   time.Duration
	provider   MemStatsProvider
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// NewMemoryPressureMonitor creates a monitor. If provider is nil, the real
// runtime.ReadMemStats is used.
func NewMemoryPressureMonitor(threshold float64, interval time.Duration, provider MemStatsProvider, onPressure PressureFunc) *MemoryPressureMonitor {
	if provider == nil {
		provider = runtimeMemStatsProvider{}
	}
	return &MemoryPressureMonitor{
		threshold:  threshold,
		onPressure: onPressure,
		interval:   interval,
		provider:   provider,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the background polling goroutine.
func (m *MemoryPressureMonitor) Start() {
	go m.run()
}

func (m *MemoryPressureMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if usage, limit, over := m.check(); over {
				slog.Warn("memory pressure detected",
					"usage_bytes", usage,
					"limit_bytes", limit,
					"threshold", m.threshold,
				)
				m.onPressure(usage, limit)
			}
		}
	}
}

// check compares non-released memory against GOMEMLIMIT. Without a limit
// it never reports pressure.
func (m *MemoryPressureMonitor) check() (usage, limit uint64, over bool) {
	l := debug.SetMemoryLimit(-1) // read current limit without changing it
	if l <= 0 {
		return 0, 0, false
	}

	var stats runtime.MemStats
	m.provider.ReadMemStats(&stats)

	usage = stats.Sys - stats.HeapReleased
	limit = uint64(l)
	return usage, limit, float64(usage)/float64(limit) > m.threshold
}

// Stop halts the background polling goroutine. Safe to call multiple times.
func (m *MemoryPressureMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}
