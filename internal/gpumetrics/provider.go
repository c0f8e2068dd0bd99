// Package gpumetrics supplies per-GPU memory usage from an external metrics
// backend. Nothing here collects telemetry itself; providers read what
// dcgm-exporter or Prometheus already publish.
package gpumetrics

import (
	"context"
	"sort"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// Usage is the framebuffer memory of one GPU, in MiB.
type Usage struct {
	UsedMiB  float64 `json:"used_mib"`
	TotalMiB float64 `json:"total_mib"`
}

// Provider returns memory usage for the GPUs held by the given records.
// GPUs absent from the returned map have no sample.
type Provider interface {
	Name() string
	Usage(ctx context.Context, records []model.GpuRecord) (map[model.GPUKey]Usage, error)
}

// Sample is one device reading attributed to a pod by the exporter.
type Sample struct {
	Namespace string
	Pod       string
	// Index is the exporter's device index ("gpu" label); -1 when absent.
	Index    int
	UUID     string
	UsedMiB  float64
	TotalMiB float64
}

// Match assigns samples to pod-local GPU ids. Samples of one pod are ordered
// by device index, then UUID, and numbered 0..N-1. Samples without a pod
// attribution are dropped.
func Match(samples []Sample) map[model.GPUKey]Usage {
	type podKey struct{ ns, pod string }
	byPod := make(map[podKey][]Sample)
	for _, s := range samples {
		if s.Pod == "" {
			continue
		}
		k := podKey{s.Namespace, s.Pod}
		byPod[k] = append(byPod[k], s)
	}

	out := make(map[model.GPUKey]Usage)
	for k, ss := range byPod {
		sort.Slice(ss, func(i, j int) bool {
			if ss[i].Index != ss[j].Index {
				return ss[i].Index < ss[j].Index
			}
			return ss[i].UUID < ss[j].UUID
		})
		for id, s := range ss {
			out[model.GPUKey{Namespace: k.ns, PodName: k.pod, GPUID: id}] = Usage{
				UsedMiB:  s.UsedMiB,
				TotalMiB: s.TotalMiB,
			}
		}
	}
	return out
}

// Apply returns a copy of records with MemoryUsed and MemoryTotal filled
// from usage. Records without a sample keep 0 used memory; any record left
// without a total gets defaultTotal.
func Apply(records []model.GpuRecord, usage map[model.GPUKey]Usage, defaultTotal float64) []model.GpuRecord {
	out := make([]model.GpuRecord, len(records))
	for i, r := range records {
		if u, ok := usage[r.Key()]; ok {
			r.MemoryUsed = u.UsedMiB
			if u.TotalMiB > 0 {
				r.MemoryTotal = u.TotalMiB
			}
		}
		if r.MemoryTotal <= 0 {
			r.MemoryTotal = defaultTotal
		}
		out[i] = r
	}
	return out
}

// NoopProvider reports no usage. Every GPU then derives as 0% used.
type NoopProvider struct{}

// Name returns "none".
func (NoopProvider) Name() string { return "none" }

// Usage returns an empty map.
func (NoopProvider) Usage(context.Context, []model.GpuRecord) (map[model.GPUKey]Usage, error) {
	return map[model.GPUKey]Usage{}, nil
}
