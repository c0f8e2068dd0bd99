package pipeline

import (
	"time"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// Latest returns the records sharing the maximum timestamp, in input order.
func Latest(records []model.GpuRecord) []model.GpuRecord {
	if len(records) == 0 {
		return nil
	}
	var newest time.Time
	for _, r := range records {
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}
	out := make([]model.GpuRecord, 0, len(records))
	for _, r := range records {
		if r.Timestamp.Equal(newest) {
			out = append(out, r)
		}
	}
	return out
}
