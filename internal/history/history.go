// Package history persists poll snapshots and converts them back into GPU
// records for the time-series views.
package history

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kubeadapt/gpustat/internal/config"
	"github.com/kubeadapt/gpustat/pkg/model"
)

// ErrDisabled is returned by Open when no history location is configured.
var ErrDisabled = stderrors.New("history: no history path or DSN configured")

// Store appends and loads poll snapshots.
type Store interface {
	Append(ctx context.Context, snapshot model.HistorySnapshot) error
	// Load returns every stored snapshot, oldest first, with GPU IDs
	// reassigned by AddGPUIDs.
	Load(ctx context.Context) ([]model.HistorySnapshot, error)
	Close() error
}

// Open returns the store selected by cfg. A Postgres DSN takes precedence
// over a file path.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch {
	case cfg.HistoryDSN != "":
		s, err := OpenPostgres(ctx, cfg.HistoryDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cfg.HistoryPath != "":
		return NewFileStore(cfg.HistoryPath), nil
	default:
		return nil, ErrDisabled
	}
}

// AddGPUIDs sets each entry's GPUID to its position inside its snapshot.
// Snapshots are modified in place and also returned.
func AddGPUIDs(snapshots []model.HistorySnapshot) []model.HistorySnapshot {
	for i := range snapshots {
		for j := range snapshots[i].GPUs {
			snapshots[i].GPUs[j].GPUID = j
		}
	}
	return snapshots
}

// Flatten expands snapshots into GPU records carrying their snapshot's
// timestamp.
func Flatten(snapshots []model.HistorySnapshot) []model.GpuRecord {
	n := 0
	for _, s := range snapshots {
		n += len(s.GPUs)
	}
	out := make([]model.GpuRecord, 0, n)
	for _, s := range snapshots {
		for _, e := range s.GPUs {
			out = append(out, model.GpuRecord{
				Timestamp:       s.Timestamp,
				PodName:         e.PodName,
				Namespace:       e.Namespace,
				NodeName:        e.NodeName,
				Username:        e.Username,
				CPURequested:    e.CPURequested,
				MemoryRequested: e.MemoryRequested,
				GPUName:         e.GPUName,
				GPUID:           e.GPUID,
				MemoryUsed:      e.MemoryUsed,
				MemoryTotal:     e.MemoryTotal,
				GPUMemUsed:      e.GPUMemUsed,
				Inactive:        e.Inactive,
			})
		}
	}
	return out
}

// FromRecords builds a snapshot from one poll. An empty id gets a new UUID.
func FromRecords(id string, ts time.Time, records []model.GpuRecord) model.HistorySnapshot {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	snap := model.HistorySnapshot{
		ID:        id,
		Timestamp: ts.UTC(),
		GPUs:      make([]model.HistoryEntry, 0, len(records)),
	}
	for _, r := range records {
		snap.GPUs = append(snap.GPUs, model.HistoryEntry{
			PodName:         r.PodName,
			Namespace:       r.Namespace,
			NodeName:        r.NodeName,
			Username:        r.Username,
			CPURequested:    r.CPURequested,
			MemoryRequested: r.MemoryRequested,
			GPUName:         r.GPUName,
			GPUID:           r.GPUID,
			MemoryUsed:      r.MemoryUsed,
			MemoryTotal:     r.MemoryTotal,
			GPUMemUsed:      r.GPUMemUsed,
			Inactive:        r.Inactive,
		})
	}
	return snap
}
