package model

// RawPodRecord is a GPU-queue pod as returned by the cluster provider, before
// any parsing. Resource requests are kept as the strings Kubernetes reports
// so malformed values can be degraded per field during extraction.
type RawPodRecord struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	NodeName  string            `json:"node_name"`
	Phase     string            `json:"phase"`
	Labels    map[string]string `json:"labels"`

	Containers []RawContainer `json:"containers"`
}

// RawContainer holds the per-container fields extraction needs.
type RawContainer struct {
	Name    string   `json:"name"`
	Command []string `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Requests maps a resource name (e.g. "cpu", "memory", "nvidia.com/gpu")
	// to its quantity string.
	Requests map[string]string `json:"requests"`
}

// PodPhaseRunning is the only phase that contributes GPU records.
const PodPhaseRunning = "Running"
