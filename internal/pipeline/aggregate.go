package pipeline

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// ModeResolver decides whether a job is interactive. classify.ModeResolver
// is the production implementation.
type ModeResolver interface {
	IsInteractive(ctx context.Context, namespace, podName string) bool
}

// ByGPUType counts records per GPU product, largest count first.
func ByGPUType(records []model.GpuRecord) model.GPUTypeTable {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.GPUName]++
	}

	table := model.GPUTypeTable{Rows: make([]model.GPUTypeCount, 0, len(counts))}
	for name, n := range counts {
		table.Rows = append(table.Rows, model.GPUTypeCount{GPUName: name, Count: n})
		table.Total += n
	}
	sort.Slice(table.Rows, func(i, j int) bool {
		if table.Rows[i].Count != table.Rows[j].Count {
			return table.Rows[i].Count > table.Rows[j].Count
		}
		return table.Rows[i].GPUName < table.Rows[j].GPUName
	})
	return table
}

// ByUser groups records by username. AvgMemUsage is the GPU-count-weighted
// mean of the per-user means.
func ByUser(records []model.GpuRecord) model.UserTable {
	groups := make(map[string][]model.GpuRecord)
	for _, r := range records {
		groups[r.Username] = append(groups[r.Username], r)
	}

	table := model.UserTable{Rows: make([]model.UserStats, 0, len(groups))}
	for user, rs := range groups {
		row := model.UserStats{
			Username: user,
			Count:    len(rs),
			MeanMem:  meanMem(rs),
		}
		for _, r := range rs {
			if r.Inactive {
				row.InactiveCount++
			}
		}
		table.Rows = append(table.Rows, row)
	}
	sort.Slice(table.Rows, func(i, j int) bool {
		return table.Rows[i].Username < table.Rows[j].Username
	})

	means := make([]float64, len(table.Rows))
	counts := make([]float64, len(table.Rows))
	for i, row := range table.Rows {
		table.TotalGPUs += row.Count
		table.TotalInactive += row.InactiveCount
		means[i] = row.MeanMem
		counts[i] = float64(row.Count)
	}
	table.AvgMemUsage = WeightedMean(means, counts)
	return table
}

// ByJob groups records by pod. Pod-level fields are taken from the group's
// first record. A job is inactive only when every one of its GPUs is.
// resolver may be nil, in which case every job is batch.
func ByJob(ctx context.Context, records []model.GpuRecord, resolver ModeResolver) model.JobTable {
	type jobKey struct{ namespace, pod string }
	groups := make(map[jobKey][]model.GpuRecord)
	var order []jobKey
	for _, r := range records {
		k := jobKey{r.Namespace, r.PodName}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].pod != order[j].pod {
			return order[i].pod < order[j].pod
		}
		return order[i].namespace < order[j].namespace
	})

	table := model.JobTable{Rows: make([]model.JobStats, 0, len(order))}
	for _, k := range order {
		rs := groups[k]
		first := rs[0]
		row := model.JobStats{
			PodName:         first.PodName,
			Namespace:       first.Namespace,
			Username:        first.Username,
			NodeName:        first.NodeName,
			CPURequested:    first.CPURequested,
			MemoryRequested: first.MemoryRequested,
			GPUCount:        len(rs),
			MeanMem:         meanMem(rs),
			AllInactive:     true,
		}
		for _, r := range rs {
			row.AllInactive = row.AllInactive && r.Inactive
		}
		if resolver != nil {
			row.Interactive = resolver.IsInteractive(ctx, first.Namespace, first.PodName)
		}
		table.Rows = append(table.Rows, row)
	}

	means := make([]float64, len(table.Rows))
	counts := make([]float64, len(table.Rows))
	for i, row := range table.Rows {
		table.JobCount++
		table.TotalCPUs += row.CPURequested
		table.TotalMemory += row.MemoryRequested
		table.TotalGPUs += row.GPUCount
		if row.AllInactive {
			table.InactiveJobs++
		}
		if row.Interactive {
			table.InteractiveJobs++
		}
		means[i] = row.MeanMem
		counts[i] = float64(row.GPUCount)
	}
	table.AvgMemUsage = WeightedMean(means, counts)
	return table
}

// WeightedMean returns Σ(values_i*weights_i)/Σweights_i, or 0 when the
// weights sum to zero.
func WeightedMean(values, weights []float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0
	}
	return stat.Mean(values, weights)
}

func meanMem(rs []model.GpuRecord) float64 {
	if len(rs) == 0 {
		return 0
	}
	vals := make([]float64, len(rs))
	for i, r := range rs {
		vals[i] = r.GPUMemUsed
	}
	return stat.Mean(vals, nil)
}
