package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/gpumetrics"
	"github.com/kubeadapt/gpustat/internal/observability"
	"github.com/kubeadapt/gpustat/pkg/model"
)

// PodSource lists the GPU pods to report on.
type PodSource interface {
	ListGpuPods(ctx context.Context, labelSelector string) ([]model.RawPodRecord, error)
}

// NodeSource resolves node metadata. It never fails; unresolvable nodes map
// to an unknown product.
type NodeSource interface {
	Resolve(ctx context.Context, names []string) map[string]model.NodeInfo
}

// Poller runs one list, extract, metrics and derive cycle.
type Poller struct {
	Pods     PodSource
	Nodes    NodeSource
	Metrics  gpumetrics.Provider
	Reporter errors.Reporter

	Selector string
	Options  ExtractOptions

	// Now defaults to time.Now.
	Now func() time.Time
	// Observe is optional.
	Observe *observability.Metrics
}

// Poll returns the derived per-GPU records of the running GPU pods. Only a
// failed pod listing is an error; node and metrics failures are reported as
// degradations and the affected fields keep their defaults.
func (p *Poller) Poll(ctx context.Context) ([]model.GpuRecord, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	reporter := p.Reporter
	if reporter == nil {
		reporter = errors.Discard
	}

	pods, err := p.Pods.ListGpuPods(ctx, p.Selector)
	if err != nil {
		return nil, fmt.Errorf("listing GPU pods: %w", err)
	}

	var nodes map[string]model.NodeInfo
	if p.Nodes != nil {
		nodes = p.Nodes.Resolve(ctx, nodeNames(pods, p.Options.GPUResourceName))
	}

	records := Extract(pods, nodes, now(), p.Options)
	if len(records) > 0 && p.Metrics != nil {
		records = p.applyUsage(ctx, records, reporter)
	}
	return Derive(records), nil
}

func (p *Poller) applyUsage(ctx context.Context, records []model.GpuRecord, reporter errors.Reporter) []model.GpuRecord {
	name := p.Metrics.Name()
	start := time.Now()
	usage, err := p.Metrics.Usage(ctx, records)
	if p.Observe != nil {
		p.Observe.MetricsProviderDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if p.Observe != nil {
			p.Observe.MetricsProviderErrors.WithLabelValues(name).Inc()
		}
		slog.Warn("GPU memory metrics unavailable", "provider", name, "error", err)
		reporter.Report(errors.Degradation{
			Code:      errors.ErrMetricsUnavailable,
			Message:   err.Error(),
			Component: name,
			Err:       err,
		})
		return records
	}
	return gpumetrics.Apply(records, usage, p.Options.DefaultMemoryTotal)
}

// nodeNames returns the distinct node names of running pods that request GPUs.
func nodeNames(pods []model.RawPodRecord, resourceName string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, pod := range pods {
		if pod.Phase != model.PodPhaseRunning || GPURequests(pod, resourceName) == 0 {
			continue
		}
		if _, ok := seen[pod.NodeName]; ok {
			continue
		}
		seen[pod.NodeName] = struct{}{}
		names = append(names, pod.NodeName)
	}
	return names
}
