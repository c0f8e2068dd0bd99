package model

import "time"

// HistorySnapshot is one stored poll: a timestamp and the GPUs seen at it.
type HistorySnapshot struct {
	ID        string         `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	GPUs      []HistoryEntry `json:"gpus"`
}

// HistoryEntry is a GpuRecord without its timestamp. GPUID is reassigned
// from the entry's position when a history file is loaded.
type HistoryEntry struct {
	PodName         string  `json:"pod_name"`
	Namespace       string  `json:"namespace"`
	NodeName        string  `json:"node_name"`
	Username        string  `json:"username"`
	CPURequested    int     `json:"cpu_requested"`
	MemoryRequested int     `json:"memory_requested"`
	GPUName         string  `json:"gpu_name"`
	GPUID           int     `json:"gpu_id"`
	MemoryUsed      float64 `json:"memory_used"`
	MemoryTotal     float64 `json:"memory_total"`
	GPUMemUsed      float64 `json:"gpu_mem_used"`
	Inactive        bool    `json:"inactive"`
}

// Report is the result of one live poll, published by watch mode.
type Report struct {
	PollID      string       `json:"poll_id"`
	Timestamp   time.Time    `json:"timestamp"`
	Records     []GpuRecord  `json:"records"`
	GPUTypes    GPUTypeTable `json:"gpu_types"`
	Users       UserTable    `json:"users"`
	Jobs        JobTable     `json:"jobs"`
	Stale       bool         `json:"stale"`
	Degradation []string     `json:"degradation,omitempty"`
}
