package pipeline

import (
	"context"
	"time"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// NewReport selects the latest snapshot of records and aggregates it by GPU
// type, user and job.
func NewReport(ctx context.Context, pollID string, ts time.Time, records []model.GpuRecord, resolver ModeResolver) *model.Report {
	current := Latest(records)
	if current == nil {
		current = []model.GpuRecord{}
	}
	return &model.Report{
		PollID:    pollID,
		Timestamp: ts,
		Records:   current,
		GPUTypes:  ByGPUType(current),
		Users:     ByUser(current),
		Jobs:      ByJob(ctx, current, resolver),
	}
}
