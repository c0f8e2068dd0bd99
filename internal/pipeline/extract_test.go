package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeadapt/gpustat/pkg/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func rawPod(name, ns, user, node, gpus string) model.RawPodRecord {
	return model.RawPodRecord{
		Name:      name,
		Namespace: ns,
		NodeName:  node,
		Phase:     model.PodPhaseRunning,
		Labels:    map[string]string{"eidf/user": user},
		Containers: []model.RawContainer{{
			Name: "main",
			Requests: map[string]string{
				"cpu":            "8",
				"memory":         "64Gi",
				"nvidia.com/gpu": gpus,
			},
		}},
	}
}

func TestExtract_OneRecordPerGPU(t *testing.T) {
	pods := []model.RawPodRecord{
		rawPod("train", "alice", "alice", "n1", "4"),
		rawPod("nb", "bob", "bob", "n2", "1"),
	}
	nodes := map[string]model.NodeInfo{
		"n1": {Name: "n1", GPUProduct: "NVIDIA-A100-SXM4-80GB"},
		"n2": {Name: "n2", GPUProduct: "NVIDIA-H100-80GB-HBM3"},
	}

	got := Extract(pods, nodes, t0, DefaultExtractOptions())
	require.Len(t, got, 5)

	for i := 0; i < 4; i++ {
		assert.Equal(t, "train", got[i].PodName)
		assert.Equal(t, i, got[i].GPUID)
		assert.Equal(t, "NVIDIA-A100-SXM4-80GB", got[i].GPUName)
	}
	last := got[4]
	assert.Equal(t, "bob", last.Username)
	assert.Equal(t, 0, last.GPUID)
	assert.Equal(t, 8, last.CPURequested)
	assert.Equal(t, 64, last.MemoryRequested)
	assert.Equal(t, float64(81920), last.MemoryTotal)
	assert.Equal(t, t0, last.Timestamp)
}

func TestExtract_SumsGPUsAcrossContainers(t *testing.T) {
	pod := rawPod("p", "ns", "u", "n1", "2")
	pod.Containers = append(pod.Containers, model.RawContainer{
		Name:     "sidecar",
		Requests: map[string]string{"cpu": "1", "nvidia.com/gpu": "1"},
	})

	got := Extract([]model.RawPodRecord{pod}, nil, t0, DefaultExtractOptions())
	require.Len(t, got, 3)
	// CPU comes from the first container only.
	assert.Equal(t, 8, got[2].CPURequested)
}

func TestExtract_SkipsNonRunningAndGPULess(t *testing.T) {
	pending := rawPod("pending", "ns", "u", "n1", "2")
	pending.Phase = "Pending"
	succeeded := rawPod("done", "ns", "u", "n1", "1")
	succeeded.Phase = "Succeeded"
	cpuOnly := rawPod("cpu", "ns", "u", "n1", "0")
	noRequest := rawPod("none", "ns", "u", "n1", "")
	delete(noRequest.Containers[0].Requests, "nvidia.com/gpu")

	got := Extract([]model.RawPodRecord{pending, succeeded, cpuOnly, noRequest}, nil, t0, DefaultExtractOptions())
	assert.Empty(t, got)
}

func TestExtract_MissingLabelsAndNodes(t *testing.T) {
	pod := rawPod("p", "ns", "", "gone", "1")
	pod.Labels = nil

	got := Extract([]model.RawPodRecord{pod}, map[string]model.NodeInfo{}, t0, DefaultExtractOptions())
	require.Len(t, got, 1)
	assert.Equal(t, model.UnknownValue, got[0].Username)
	assert.Equal(t, model.UnknownValue, got[0].GPUName)
}

func TestExtract_MalformedRequestsDegradeToZero(t *testing.T) {
	bad := rawPod("bad", "ns", "u", "n1", "1")
	bad.Containers[0].Requests["cpu"] = "lots"
	bad.Containers[0].Requests["memory"] = "??"
	good := rawPod("good", "ns", "u", "n1", "1")

	got := Extract([]model.RawPodRecord{bad, good}, nil, t0, DefaultExtractOptions())
	require.Len(t, got, 2, "one malformed pod must not drop the rest")
	assert.Equal(t, 0, got[0].CPURequested)
	assert.Equal(t, 0, got[0].MemoryRequested)
	assert.Equal(t, 8, got[1].CPURequested)
}

func TestExtract_Empty(t *testing.T) {
	assert.Empty(t, Extract(nil, nil, t0, DefaultExtractOptions()))
}

func TestParseCPU(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"4", 4},
		{"2.5", 2},
		{"1500m", 1},
		{"500m", 0},
		{" 16 ", 16},
		{"", 0},
		{"abc", 0},
		{"-3", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCPU(tt.in))
		})
	}
}

func TestParseMemoryGB(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"16Gi", 16},
		{"16G", 16},
		{"32", 32},
		{"7.5Gi", 7},
		{"2048Mi", 2},
		{"1Ti", 1024},
		{"17179869184", 16},
		{"", 0},
		{"big", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMemoryGB(tt.in))
		})
	}
}

func TestGPURequests(t *testing.T) {
	pod := rawPod("p", "ns", "u", "n", "2")
	assert.Equal(t, 2, GPURequests(pod, "nvidia.com/gpu"))
	assert.Equal(t, 0, GPURequests(pod, "amd.com/gpu"))

	pod.Containers[0].Requests["nvidia.com/gpu"] = "x"
	assert.Equal(t, 0, GPURequests(pod, "nvidia.com/gpu"))
}
