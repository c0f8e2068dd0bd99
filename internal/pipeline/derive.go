package pipeline

import (
	"math"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// InactiveThreshold is the memory utilization percentage below which a GPU
// counts as inactive.
const InactiveThreshold = 1.0

// Derive returns a copy of records with GPUMemUsed and Inactive computed.
// A record with no usable MemoryTotal gets 0% and is inactive.
func Derive(records []model.GpuRecord) []model.GpuRecord {
	out := make([]model.GpuRecord, len(records))
	for i, r := range records {
		r.GPUMemUsed = MemUsedPercent(r.MemoryUsed, r.MemoryTotal)
		r.Inactive = r.GPUMemUsed < InactiveThreshold
		out[i] = r
	}
	return out
}

// Rederive recomputes GPUMemUsed and Inactive for stored records that carry
// a MemoryTotal. Records without one keep their stored derived fields.
func Rederive(records []model.GpuRecord) []model.GpuRecord {
	out := make([]model.GpuRecord, len(records))
	for i, r := range records {
		if r.MemoryTotal > 0 {
			r.GPUMemUsed = MemUsedPercent(r.MemoryUsed, r.MemoryTotal)
			r.Inactive = r.GPUMemUsed < InactiveThreshold
		}
		out[i] = r
	}
	return out
}

// MemUsedPercent is used/total*100 clamped to [0,100], or 0 when the
// inputs cannot produce a finite value.
func MemUsedPercent(used, total float64) float64 {
	if total <= 0 || math.IsNaN(total) || math.IsNaN(used) || math.IsInf(total, 0) {
		return 0
	}
	pct := used / total * 100
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
