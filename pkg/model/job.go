package model

// GPUTypeCount is the number of GPUs in use for one product.
type GPUTypeCount struct {
	GPUName string `json:"gpu_name"`
	Count   int    `json:"count"`
}

// GPUTypeTable is the by-GPU-type aggregate with its footer.
type GPUTypeTable struct {
	Rows  []GPUTypeCount `json:"rows"`
	Total int            `json:"total"`
}

// UserStats aggregates the GPUs held by one user.
type UserStats struct {
	Username      string  `json:"username"`
	Count         int     `json:"count"`
	MeanMem       float64 `json:"mean_mem"`
	InactiveCount int     `json:"inactive_count"`
}

// UserTable is the by-user aggregate. AvgMemUsage is weighted by GPU count.
type UserTable struct {
	Rows          []UserStats `json:"rows"`
	TotalGPUs     int         `json:"total_gpus"`
	TotalInactive int         `json:"total_inactive"`
	AvgMemUsage   float64     `json:"avg_mem_usage"`
}

// JobStats aggregates the GPUs held by one pod.
type JobStats struct {
	PodName         string  `json:"pod_name"`
	Namespace       string  `json:"namespace"`
	Username        string  `json:"username"`
	NodeName        string  `json:"node_name"`
	CPURequested    int     `json:"cpu_requested"`
	MemoryRequested int     `json:"memory_requested"`
	GPUCount        int     `json:"gpu_count"`
	MeanMem         float64 `json:"mean_mem"`
	// AllInactive is true only when every GPU of the job is inactive.
	AllInactive bool `json:"all_inactive"`
	Interactive bool `json:"interactive"`
}

// JobTable is the by-job aggregate with its footer values.
type JobTable struct {
	Rows            []JobStats `json:"rows"`
	JobCount        int        `json:"job_count"`
	TotalCPUs       int        `json:"total_cpus"`
	TotalMemory     int        `json:"total_memory"`
	TotalGPUs       int        `json:"total_gpus"`
	AvgMemUsage     float64    `json:"avg_mem_usage"`
	InactiveJobs    int        `json:"inactive_jobs"`
	InteractiveJobs int        `json:"interactive_jobs"`
}
