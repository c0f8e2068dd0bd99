package agent

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/history"
	"github.com/kubeadapt/gpustat/internal/observability"
	"github.com/kubeadapt/gpustat/pkg/model"
)

// fakePoller returns queued results in order, repeating the last one.
type fakePoller struct {
	mu      sync.Mutex
	results []pollResult
	calls   int
}

type pollResult struct {
	records []model.GpuRecord
	err     error
}

func (f *fakePoller) Poll(context.Context) ([]model.GpuRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	return r.records, r.err
}

func (f *fakePoller) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var monitorT0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func gpuRecord(pod, user string, id int, used float64) model.GpuRecord {
	return model.GpuRecord{
		Timestamp:   monitorT0,
		PodName:     pod,
		Namespace:   user,
		NodeName:    "gpu-node-1",
		Username:    user,
		GPUName:     "A100",
		GPUID:       id,
		MemoryUsed:  used,
		MemoryTotal: 80000,
		GPUMemUsed:  used / 800,
		Inactive:    used == 0,
	}
}

func TestMonitor_PollOncePublishesReport(t *testing.T) {
	poller := &fakePoller{results: []pollResult{{records: []model.GpuRecord{
		gpuRecord("train", "alice", 0, 40000),
		gpuRecord("train", "alice", 1, 0),
	}}}}
	metrics := observability.NewMetrics()
	mon := NewMonitor(poller, Options{
		Interval: time.Minute,
		Metrics:  metrics,
		Clock:    clocktesting.NewFakeClock(monitorT0),
	})

	assert.False(t, mon.IsReady())
	assert.Nil(t, mon.LatestReport())

	report, err := mon.PollOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, mon.IsReady())
	assert.Same(t, report, mon.LatestReport())
	assert.NotEmpty(t, report.PollID)
	assert.False(t, report.Stale)
	assert.Equal(t, 2, report.GPUTypes.Total)
	assert.Equal(t, 1, report.Jobs.JobCount)
	assert.Equal(t, StateRunning, mon.State())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PollTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.GPUsInUse.WithLabelValues("A100")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ReportStale))
}

func TestMonitor_FailureKeepsStaleReport(t *testing.T) {
	poller := &fakePoller{results: []pollResult{
		{records: []model.GpuRecord{gpuRecord("train", "alice", 0, 100)}},
		{err: stderrors.New("listing GPU pods: connection refused")},
	}}
	metrics := observability.NewMetrics()
	mon := NewMonitor(poller, Options{Metrics: metrics, Clock: clocktesting.NewFakeClock(monitorT0)})

	first, err := mon.PollOnce(context.Background())
	require.NoError(t, err)

	got, err := mon.PollOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, got)

	assert.True(t, got.Stale)
	assert.Equal(t, first.PollID, got.PollID)
	assert.False(t, first.Stale, "the published report is copied, not mutated")
	require.Len(t, got.Degradation, 1)
	assert.Contains(t, got.Degradation[0], string(errors.ErrClusterUnreachable))
	assert.Equal(t, StateStale, mon.State())
	assert.True(t, mon.IsReady())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PollTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReportStale))
}

func TestMonitor_RecoveryClearsUnreachable(t *testing.T) {
	poller := &fakePoller{results: []pollResult{
		{err: stderrors.New("connection refused")},
		{records: []model.GpuRecord{gpuRecord("train", "alice", 0, 100)}},
	}}
	mon := NewMonitor(poller, Options{Clock: clocktesting.NewFakeClock(monitorT0)})

	got, err := mon.PollOnce(context.Background())
	require.Error(t, err)
	assert.Nil(t, got, "no report before the first success")
	assert.False(t, mon.IsReady())
	assert.Equal(t, StateStarting, mon.State())

	report, err := mon.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Degradation)
	assert.Equal(t, StateRunning, mon.State())
}

func TestMonitor_AppendsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := history.NewFileStore(path)
	poller := &fakePoller{results: []pollResult{{records: []model.GpuRecord{
		gpuRecord("train", "alice", 0, 100),
		gpuRecord("notebook", "bob", 0, 0),
	}}}}
	metrics := observability.NewMetrics()
	mon := NewMonitor(poller, Options{
		History: store,
		Metrics: metrics,
		Clock:   clocktesting.NewFakeClock(monitorT0),
	})

	report, err := mon.PollOnce(context.Background())
	require.NoError(t, err)

	snaps, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, report.PollID, snaps[0].ID)
	assert.True(t, monitorT0.Equal(snaps[0].Timestamp))
	assert.Len(t, snaps[0].GPUs, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HistoryAppendTotal.WithLabelValues("success")))
}

// failingStore always fails to append.
type failingStore struct{}

func (failingStore) Append(context.Context, model.HistorySnapshot) error {
	return stderrors.New("disk full")
}
func (failingStore) Load(context.Context) ([]model.HistorySnapshot, error) { return nil, nil }
func (failingStore) Close() error                                          { return nil }

func TestMonitor_HistoryFailureIsDegradation(t *testing.T) {
	poller := &fakePoller{results: []pollResult{{records: []model.GpuRecord{gpuRecord("train", "alice", 0, 100)}}}}
	metrics := observability.NewMetrics()
	mon := NewMonitor(poller, Options{History: failingStore{}, Metrics: metrics, Clock: clocktesting.NewFakeClock(monitorT0)})

	report, err := mon.PollOnce(context.Background())
	require.NoError(t, err, "history failures do not fail the poll")

	require.Len(t, report.Degradation, 1)
	assert.Contains(t, report.Degradation[0], string(errors.ErrHistoryUnavailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HistoryAppendTotal.WithLabelValues("error")))
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	poller := &fakePoller{results: []pollResult{{records: []model.GpuRecord{gpuRecord("train", "alice", 0, 100)}}}}
	mon := NewMonitor(poller, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, func() bool { return poller.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, mon.IsReady())
}

func TestMonitor_RunSkipsTicksDuringBackoff(t *testing.T) {
	clk := clocktesting.NewFakeClock(monitorT0)
	poller := &fakePoller{results: []pollResult{{err: stderrors.New("connection refused")}}}
	mon := NewMonitor(poller, Options{Interval: 5 * time.Millisecond, Clock: clk})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mon.Run(ctx) }()

	require.Eventually(t, func() bool { return poller.Calls() >= failuresBeforeBackoff }, time.Second, time.Millisecond)

	// The fake clock never advances, so backoff never ends.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, failuresBeforeBackoff, poller.Calls())
}
