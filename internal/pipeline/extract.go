// Package pipeline turns raw cluster records into per-GPU records and
// aggregates them by GPU type, user and job.
package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/kubeadapt/gpustat/pkg/model"
)

const gib = 1 << 30

// ExtractOptions carries the configurable label keys and defaults used
// during extraction.
type ExtractOptions struct {
	UserLabelKey    string
	GPUResourceName string
	// DefaultMemoryTotal is the per-GPU memory (MiB) assumed until a
	// metrics provider reports the real value.
	DefaultMemoryTotal float64
}

// DefaultExtractOptions returns the options matching the default config.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		UserLabelKey:       "eidf/user",
		GPUResourceName:    "nvidia.com/gpu",
		DefaultMemoryTotal: 80 * 1024,
	}
}

// Extract expands running GPU pods into one GpuRecord per allocated GPU.
// nodes maps node name to its metadata; nodes missing from it get an
// "unknown" GPU product. Malformed resource strings degrade to 0.
func Extract(pods []model.RawPodRecord, nodes map[string]model.NodeInfo, ts time.Time, opts ExtractOptions) []model.GpuRecord {
	var records []model.GpuRecord
	for _, pod := range pods {
		if pod.Phase != model.PodPhaseRunning {
			continue
		}
		gpus := GPURequests(pod, opts.GPUResourceName)
		if gpus == 0 {
			continue
		}

		username := pod.Labels[opts.UserLabelKey]
		if username == "" {
			username = model.UnknownValue
		}
		gpuName := model.UnknownValue
		if n, ok := nodes[pod.NodeName]; ok && n.GPUProduct != "" {
			gpuName = n.GPUProduct
		}

		// CPU and memory are read from the first container only.
		var cpu, mem int
		if len(pod.Containers) > 0 {
			cpu = ParseCPU(pod.Containers[0].Requests["cpu"])
			mem = ParseMemoryGB(pod.Containers[0].Requests["memory"])
		}

		for id := 0; id < gpus; id++ {
			records = append(records, model.GpuRecord{
				Timestamp:       ts,
				PodName:         pod.Name,
				Namespace:       pod.Namespace,
				NodeName:        pod.NodeName,
				Username:        username,
				CPURequested:    cpu,
				MemoryRequested: mem,
				GPUName:         gpuName,
				GPUID:           id,
				MemoryTotal:     opts.DefaultMemoryTotal,
			})
		}
	}
	return records
}

// GPURequests sums the GPU resource request across all containers of a pod.
func GPURequests(pod model.RawPodRecord, resourceName string) int {
	total := 0
	for _, c := range pod.Containers {
		total += parseCount(c.Requests[resourceName])
	}
	return total
}

func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return max(n, 0)
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return max(int(q.Value()), 0)
}

// ParseCPU parses a CPU request into whole cores, truncating fractions.
// Plain numbers are parsed directly; Kubernetes quantities such as "1500m"
// are accepted as a fallback. Anything else yields 0.
func ParseCPU(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return truncate(f)
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return max(int(q.MilliValue()/1000), 0)
}

// ParseMemoryGB parses a memory request into whole GB. Trailing "G" and "i"
// characters are stripped before parsing, so "16Gi" and "16G" both give 16.
// Other quantities ("512Mi", "1Ti") and plain numbers too large to be GB,
// such as a byte count, fall back to Kubernetes quantity parsing in GiB.
// Anything else yields 0.
func ParseMemoryGB(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(strings.TrimRight(s, "Gi"), 64); err == nil && inRange(f) {
		return int(f)
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return max(int(q.Value()/gib), 0)
}

func truncate(f float64) int {
	if !inRange(f) {
		return 0
	}
	return int(f)
}

func inRange(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= float64(1<<31)
}
