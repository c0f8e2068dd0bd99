package gpumetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dcgmOutputNewStyleMultiGPU = `# HELP DCGM_FI_DEV_GPU_UTIL GPU utilization (in %).
# TYPE DCGM_FI_DEV_GPU_UTIL gauge
DCGM_FI_DEV_GPU_UTIL{gpu="0",UUID="GPU-abc123",device="nvidia0",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="main",namespace="default",pod="myapp-xyz"} 42
DCGM_FI_DEV_GPU_UTIL{gpu="1",UUID="GPU-def456",device="nvidia1",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="",namespace="",pod=""} 15
# HELP DCGM_FI_DEV_FB_USED Framebuffer memory used (in MiB).
# TYPE DCGM_FI_DEV_FB_USED gauge
DCGM_FI_DEV_FB_USED{gpu="0",UUID="GPU-abc123",device="nvidia0",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="main",namespace="default",pod="myapp-xyz"} 32000
DCGM_FI_DEV_FB_USED{gpu="1",UUID="GPU-def456",device="nvidia1",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="",namespace="",pod=""} 1024
# HELP DCGM_FI_DEV_FB_FREE Framebuffer memory free (in MiB).
# TYPE DCGM_FI_DEV_FB_FREE gauge
DCGM_FI_DEV_FB_FREE{gpu="0",UUID="GPU-abc123",device="nvidia0",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="main",namespace="default",pod="myapp-xyz"} 49920
DCGM_FI_DEV_FB_FREE{gpu="1",UUID="GPU-def456",device="nvidia1",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="",namespace="",pod=""} 80896
# HELP DCGM_FI_DEV_FB_TOTAL Total framebuffer memory (in MiB).
# TYPE DCGM_FI_DEV_FB_TOTAL gauge
DCGM_FI_DEV_FB_TOTAL{gpu="0",UUID="GPU-abc123",device="nvidia0",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="main",namespace="default",pod="myapp-xyz"} 81920
DCGM_FI_DEV_FB_TOTAL{gpu="1",UUID="GPU-def456",device="nvidia1",modelName="NVIDIA A100-SXM4-80GB",Hostname="gpu-node-1",container="",namespace="",pod=""} 81920
`

func TestParseDCGMMemory_NewStyleLabels_MultiGPU(t *testing.T) {
	samples := ParseDCGMMemory([]byte(dcgmOutputNewStyleMultiGPU))
	require.Len(t, samples, 2)

	byUUID := make(map[string]Sample)
	for _, s := range samples {
		byUUID[s.UUID] = s
	}

	gpu0 := byUUID["GPU-abc123"]
	assert.Equal(t, "myapp-xyz", gpu0.Pod)
	assert.Equal(t, "default", gpu0.Namespace)
	assert.Equal(t, 0, gpu0.Index)
	assert.InDelta(t, 32000.0, gpu0.UsedMiB, 0.001)
	assert.InDelta(t, 81920.0, gpu0.TotalMiB, 0.001)

	// GPU 1 is not attributed to any pod.
	gpu1 := byUUID["GPU-def456"]
	assert.Empty(t, gpu1.Pod)
	assert.Equal(t, 1, gpu1.Index)
	assert.InDelta(t, 1024.0, gpu1.UsedMiB, 0.001)
}

func TestParseDCGMMemory_OldStyleLabels(t *testing.T) {
	input := `DCGM_FI_DEV_FB_USED{gpu="0",UUID="GPU-old1",pod_name="trainer-0",pod_namespace="ml",container_name="main"} 2048
DCGM_FI_DEV_FB_FREE{gpu="0",UUID="GPU-old1",pod_name="trainer-0",pod_namespace="ml",container_name="main"} 6144
`
	samples := ParseDCGMMemory([]byte(input))
	require.Len(t, samples, 1)

	s := samples[0]
	assert.Equal(t, "trainer-0", s.Pod)
	assert.Equal(t, "ml", s.Namespace)
	assert.InDelta(t, 2048.0, s.UsedMiB, 0.001)
	// No FB_TOTAL: total = used + free.
	assert.InDelta(t, 8192.0, s.TotalMiB, 0.001)
}

func TestParseDCGMMemory_SentinelValueRejection(t *testing.T) {
	input := `DCGM_FI_DEV_FB_USED{gpu="0",UUID="GPU-s1",pod="p",namespace="ns"} 1.8446744073709552e+19
DCGM_FI_DEV_FB_TOTAL{gpu="0",UUID="GPU-s1",pod="p",namespace="ns"} 81920
`
	samples := ParseDCGMMemory([]byte(input))
	assert.Empty(t, samples, "device without a valid FB_USED must be dropped")
}

func TestParseDCGMMemory_NoUUIDFallsBackToGPUIndex(t *testing.T) {
	input := `DCGM_FI_DEV_FB_USED{gpu="3",pod="p",namespace="ns"} 100
DCGM_FI_DEV_FB_TOTAL{gpu="3",pod="p",namespace="ns"} 1000
`
	samples := ParseDCGMMemory([]byte(input))
	require.Len(t, samples, 1)
	assert.Equal(t, 3, samples[0].Index)
	assert.InDelta(t, 1000.0, samples[0].TotalMiB, 0.001)
}

func TestParseDCGMMemory_EmptyLabelsSkipped(t *testing.T) {
	input := `DCGM_FI_DEV_FB_USED 100
DCGM_FI_DEV_FB_USED{pod="p"} 100
`
	assert.Empty(t, ParseDCGMMemory([]byte(input)))
}

func TestParseDCGMMemory_EmptyInput(t *testing.T) {
	assert.Empty(t, ParseDCGMMemory(nil))
	assert.Empty(t, ParseDCGMMemory([]byte("# only comments\n\n")))
}

func TestIsSentinel(t *testing.T) {
	tests := []struct {
		value float64
		want  bool
	}{
		{0, false},
		{81920, false},
		{1e15, false},
		{1e16, true},
		{1.8446744073709552e+19, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSentinel(tt.value), "isSentinel(%v)", tt.value)
	}
}

func TestParseSampleLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		ok     bool
		metric string
		value  float64
		pod    string
	}{
		{"no labels", "up 1", true, "up", 1, ""},
		{"with labels", `DCGM_FI_DEV_FB_USED{pod="a",namespace="b"} 12.5`, true, "DCGM_FI_DEV_FB_USED", 12.5, "a"},
		{"with timestamp", `DCGM_FI_DEV_FB_USED{pod="a"} 7 1700000000000`, true, "DCGM_FI_DEV_FB_USED", 7, "a"},
		{"escaped quote", `m{pod="a\"b"} 1`, true, "m", 1, `a"b`},
		{"missing value", `m{pod="a"}`, false, "", 0, ""},
		{"bad value", `m{pod="a"} abc`, false, "", 0, ""},
		{"unterminated brace", `m{pod="a" 1`, false, "", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := parseSampleLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.metric, s.name)
			assert.InDelta(t, tt.value, s.value, 0.001)
			assert.Equal(t, tt.pod, s.labels.podName)
		})
	}
}
