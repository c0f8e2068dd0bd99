package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/history"
	"github.com/kubeadapt/gpustat/internal/observability"
	"github.com/kubeadapt/gpustat/internal/pipeline"
	"github.com/kubeadapt/gpustat/pkg/model"
)

const (
	componentMonitor = "monitor"
	componentHistory = "history"

	// Longest gap between polls while the cluster keeps failing.
	maxBackoff = 10 * time.Minute
)

// Poller produces the derived records of one poll.
type Poller interface {
	Poll(ctx context.Context) ([]model.GpuRecord, error)
}

// Options configures a Monitor. Resolver, History and Metrics are optional.
type Options struct {
	Interval  time.Duration
	Resolver  pipeline.ModeResolver
	History   history.Store
	Collector *errors.Collector
	Metrics   *observability.Metrics
	Clock     errors.Clock
}

// Monitor polls the cluster on an interval and publishes the latest report.
// A failed poll keeps the previous report, marked stale.
type Monitor struct {
	poller Poller
	opts   Options
	sm     *StateMachine

	latest atomic.Pointer[model.Report]
	ready  atomic.Bool
}

// NewMonitor creates a Monitor. A zero Interval defaults to one minute.
func NewMonitor(poller Poller, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = errors.RealClock{}
	}
	if opts.Collector == nil {
		opts.Collector = errors.NewCollector(opts.Clock)
	}
	return &Monitor{
		poller: poller,
		opts:   opts,
		sm:     NewStateMachine(opts.Clock, opts.Interval, maxBackoff),
	}
}

// IsReady reports whether at least one poll has succeeded.
func (m *Monitor) IsReady() bool {
	return m.ready.Load()
}

// LatestReport returns the last published report, or nil before the first poll.
func (m *Monitor) LatestReport() *model.Report {
	return m.latest.Load()
}

// State returns the monitor's lifecycle state.
func (m *Monitor) State() MonitorState {
	return m.sm.State()
}

// PollOnce runs a single poll and publishes its report.
func (m *Monitor) PollOnce(ctx context.Context) (*model.Report, error) {
	start := m.opts.Clock.Now()

	records, err := m.poller.Poll(ctx)
	if err != nil {
		m.fail(err)
		return m.latest.Load(), err
	}
	m.opts.Collector.Resolve(errors.ErrClusterUnreachable, componentMonitor)

	report := pipeline.NewReport(ctx, uuid.NewString(), start, records, m.opts.Resolver)
	m.appendHistory(ctx, report)
	report.Degradation = m.opts.Collector.Messages()

	m.latest.Store(report)
	m.ready.Store(true)
	m.sm.HandlePollResult(nil)

	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordReport(report)
		m.opts.Metrics.PollTotal.WithLabelValues("success").Inc()
		m.opts.Metrics.ReportStale.Set(0)
		m.opts.Metrics.PollDuration.Observe(m.opts.Clock.Now().Sub(start).Seconds())
	}
	return report, nil
}

func (m *Monitor) fail(err error) {
	m.opts.Collector.Report(errors.Degradation{
		Code:      errors.ErrClusterUnreachable,
		Message:   fmt.Sprintf("poll failed: %v", err),
		Component: componentMonitor,
		Err:       err,
	})
	m.sm.HandlePollResult(err)

	if prev := m.latest.Load(); prev != nil {
		stale := *prev
		stale.Stale = true
		stale.Degradation = m.opts.Collector.Messages()
		m.latest.Store(&stale)
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.PollTotal.WithLabelValues("error").Inc()
		m.opts.Metrics.ReportStale.Set(1)
	}
}

func (m *Monitor) appendHistory(ctx context.Context, report *model.Report) {
	if m.opts.History == nil {
		return
	}

	ts := report.Timestamp
	if len(report.Records) > 0 {
		ts = report.Records[0].Timestamp
	}

	status := "success"
	if err := m.opts.History.Append(ctx, history.FromRecords(report.PollID, ts, report.Records)); err != nil {
		status = "error"
		slog.Warn("history append failed", "error", err)
		m.opts.Collector.Report(errors.Degradation{
			Code:      errors.ErrHistoryUnavailable,
			Message:   "recording snapshot failed",
			Component: componentHistory,
			Err:       err,
		})
	} else {
		m.opts.Collector.Resolve(errors.ErrHistoryUnavailable, componentHistory)
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.HistoryAppendTotal.WithLabelValues(status).Inc()
	}
}

// Run polls immediately and then on every tick until ctx is cancelled.
// Ticks are skipped while the state machine is backing off.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor starting", "interval", m.opts.Interval)

	m.tick(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped", "state", m.sm.State())
			return ctx.Err()
		case <-ticker.C:
			if m.sm.InBackoff() {
				slog.Debug("skipping poll during backoff",
					"remaining", m.sm.BackoffRemaining(),
					"failures", m.sm.Failures(),
				)
				continue
			}
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	report, err := m.PollOnce(ctx)
	if err != nil {
		slog.Error("poll failed",
			"error", err,
			"state", m.sm.State(),
			"failures", m.sm.Failures(),
		)
		return
	}
	slog.Info("poll complete",
		"poll_id", report.PollID,
		"gpus", report.GPUTypes.Total,
		"jobs", report.Jobs.JobCount,
		"degradations", len(report.Degradation),
	)
}
