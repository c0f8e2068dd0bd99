package model

import "time"

// GpuRecord is one row per GPU allocated to a running pod.
// Pod-level fields are duplicated across every GPU row of the same pod.
type GpuRecord struct {
	Timestamp time.Time `json:"timestamp"`

	PodName   string `json:"pod_name"`
	Namespace string `json:"namespace"`
	NodeName  string `json:"node_name"`
	Username  string `json:"username"`

	CPURequested    int `json:"cpu_requested"`
	MemoryRequested int `json:"memory_requested"`

	GPUName string `json:"gpu_name"`
	GPUID   int    `json:"gpu_id"`

	// MemoryUsed and MemoryTotal are in MiB.
	MemoryUsed  float64 `json:"memory_used"`
	MemoryTotal float64 `json:"memory_total"`

	// Derived by pipeline.Derive.
	GPUMemUsed float64 `json:"gpu_mem_used"`
	Inactive   bool    `json:"inactive"`
}

// Key identifies the record's GPU slot within its pod.
func (r GpuRecord) Key() GPUKey {
	return GPUKey{Namespace: r.Namespace, PodName: r.PodName, GPUID: r.GPUID}
}

// GPUKey addresses one GPU of one pod. GPUID is the pod-local index.
type GPUKey struct {
	Namespace string
	PodName   string
	GPUID     int
}
