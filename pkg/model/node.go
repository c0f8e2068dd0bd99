package model

// UnknownValue is used for any label or lookup that could not be resolved.
const UnknownValue = "unknown"

// NodeInfo is the subset of node metadata joined onto GPU records.
type NodeInfo struct {
	Name       string `json:"name"`
	GPUProduct string `json:"gpu_product"`
}
