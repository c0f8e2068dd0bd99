package cluster

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	fakeclientset "k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"

	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/store"
	"github.com/kubeadapt/gpustat/pkg/model"
)

func gpuPod(name, ns, node string, labels map[string]string, gpus string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: labels},
		Spec: corev1.PodSpec{
			NodeName: node,
			Containers: []corev1.Container{{
				Name:    "main",
				Command: []string{"/bin/bash", "-c"},
				Args:    []string{"sleep infinity"},
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceCPU:                    resource.MustParse("4"),
						corev1.ResourceMemory:                 resource.MustParse("16Gi"),
						corev1.ResourceName("nvidia.com/gpu"): resource.MustParse(gpus),
					},
				},
			}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func TestPodToRecord(t *testing.T) {
	pod := gpuPod("train-1", "alice", "gpu-node-1", map[string]string{"eidf/user": "alice"}, "2")

	got := PodToRecord(pod)

	want := model.RawPodRecord{
		Name:      "train-1",
		Namespace: "alice",
		NodeName:  "gpu-node-1",
		Phase:     "Running",
		Labels:    map[string]string{"eidf/user": "alice"},
		Containers: []model.RawContainer{{
			Name:    "main",
			Command: []string{"/bin/bash", "-c"},
			Args:    []string{"sleep infinity"},
			Requests: map[string]string{
				"cpu":            "4",
				"memory":         "16Gi",
				"nvidia.com/gpu": "2",
			},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PodToRecord() mismatch (-want +got):\n%s", diff)
	}
}

func TestNodeToInfo(t *testing.T) {
	node := &corev1.Node{ObjectMeta: metav1.ObjectMeta{
		Name:   "gpu-node-1",
		Labels: map[string]string{"nvidia.com/gpu.product": "NVIDIA-A100-SXM4-80GB"},
	}}
	assert.Equal(t, model.NodeInfo{Name: "gpu-node-1", GPUProduct: "NVIDIA-A100-SXM4-80GB"},
		NodeToInfo(node, "nvidia.com/gpu.product"))

	bare := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "cpu-node"}}
	assert.Equal(t, model.UnknownValue, NodeToInfo(bare, "nvidia.com/gpu.product").GPUProduct)
}

func TestLaunchCommand(t *testing.T) {
	pod := gpuPod("p", "ns", "n", nil, "1")
	assert.Equal(t, []string{"/bin/bash", "-c", "sleep infinity"}, LaunchCommand(pod))

	assert.Nil(t, LaunchCommand(&corev1.Pod{}))
}

func TestKubeProvider_ListGpuPods(t *testing.T) {
	queue := map[string]string{"kueue.x-k8s.io/queue-name": "default"}
	client := fakeclientset.NewSimpleClientset(
		gpuPod("a", "alice", "n1", queue, "1"),
		gpuPod("b", "bob", "n2", queue, "2"),
		gpuPod("unqueued", "carol", "n1", nil, "1"),
	)
	p := NewKubeProvider(client, "nvidia.com/gpu.product")

	pods, err := p.ListGpuPods(context.Background(), "kueue.x-k8s.io/queue-name")
	require.NoError(t, err)

	names := make([]string, 0, len(pods))
	for _, pod := range pods {
		names = append(names, pod.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestKubeProvider_ListGpuPods_Error(t *testing.T) {
	client := fakeclientset.NewSimpleClientset()
	client.PrependReactor("list", "pods", func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, stderrors.New("connection refused")
	})
	p := NewKubeProvider(client, "nvidia.com/gpu.product")

	_, err := p.ListGpuPods(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKubeProvider_GetNode(t *testing.T) {
	client := fakeclientset.NewSimpleClientset(&corev1.Node{ObjectMeta: metav1.ObjectMeta{
		Name:   "n1",
		Labels: map[string]string{"nvidia.com/gpu.product": "NVIDIA-H100-80GB-HBM3"},
	}})
	p := NewKubeProvider(client, "nvidia.com/gpu.product")

	info, err := p.GetNode(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA-H100-80GB-HBM3", info.GPUProduct)

	_, err = p.GetNode(context.Background(), "missing")
	require.Error(t, err)
}

func TestKubeProvider_PodCommand(t *testing.T) {
	client := fakeclientset.NewSimpleClientset(gpuPod("nb", "alice", "n1", nil, "1"))
	p := NewKubeProvider(client, "nvidia.com/gpu.product")

	cmd, err := p.PodCommand(context.Background(), "alice", "nb")
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/bash", "-c", "sleep infinity"}, cmd)

	_, err = p.PodCommand(context.Background(), "other", "nb")
	require.Error(t, err)
}

// countingGetter counts GetNode calls per node.
type countingGetter struct {
	calls map[string]int
	nodes map[string]model.NodeInfo
}

func (g *countingGetter) GetNode(_ context.Context, name string) (model.NodeInfo, error) {
	g.calls[name]++
	info, ok := g.nodes[name]
	if !ok {
		return model.NodeInfo{}, stderrors.New("not found")
	}
	return info, nil
}

type recordingReporter struct{ got []errors.Degradation }

func (r *recordingReporter) Report(d errors.Degradation) { r.got = append(r.got, d) }

func TestNodeResolver_OneLookupPerNode(t *testing.T) {
	g := &countingGetter{
		calls: map[string]int{},
		nodes: map[string]model.NodeInfo{
			"n1": {Name: "n1", GPUProduct: "A100"},
			"n2": {Name: "n2", GPUProduct: "H100"},
		},
	}
	rep := &recordingReporter{}
	r := NewNodeResolver(g, nil, rep)

	got := r.Resolve(context.Background(), []string{"n1", "n2", "n1", "n1"})
	assert.Equal(t, "A100", got["n1"].GPUProduct)
	assert.Equal(t, "H100", got["n2"].GPUProduct)

	assert.Equal(t, 1, g.calls["n1"])
	assert.Equal(t, 1, g.calls["n2"])
	assert.Empty(t, rep.got)
}

func TestNodeResolver_EachPollLooksUpAgain(t *testing.T) {
	g := &countingGetter{
		calls: map[string]int{},
		nodes: map[string]model.NodeInfo{"n1": {Name: "n1", GPUProduct: "A100"}},
	}
	cache := store.NewCache[model.NodeInfo]()
	r := NewNodeResolver(g, cache, nil)

	got := r.Resolve(context.Background(), []string{"n1"})
	require.Equal(t, "A100", got["n1"].GPUProduct)

	// Node relabelled between polls, e.g. after MIG reconfiguration.
	g.nodes["n1"] = model.NodeInfo{Name: "n1", GPUProduct: "H100"}

	got = r.Resolve(context.Background(), []string{"n1", "n1"})
	assert.Equal(t, "H100", got["n1"].GPUProduct)
	assert.Equal(t, 2, g.calls["n1"])
	assert.Equal(t, 1, cache.Len(), "cache holds only the current poll's nodes")
}

func TestNodeResolver_DropsNodesFromEarlierPolls(t *testing.T) {
	g := &countingGetter{
		calls: map[string]int{},
		nodes: map[string]model.NodeInfo{
			"n1": {Name: "n1", GPUProduct: "A100"},
			"n2": {Name: "n2", GPUProduct: "H100"},
		},
	}
	cache := store.NewCache[model.NodeInfo]()
	r := NewNodeResolver(g, cache, nil)

	r.Resolve(context.Background(), []string{"n1", "n2"})
	r.Resolve(context.Background(), []string{"n2"})

	_, stillCached := cache.Get("n1")
	assert.False(t, stillCached)
	assert.Equal(t, 1, cache.Len())
}

func TestNodeResolver_FailureDegradesToUnknown(t *testing.T) {
	g := &countingGetter{calls: map[string]int{}, nodes: map[string]model.NodeInfo{}}
	rep := &recordingReporter{}
	r := NewNodeResolver(g, nil, rep)

	got := r.Resolve(context.Background(), []string{"gone", ""})
	assert.Equal(t, model.UnknownValue, got["gone"].GPUProduct)
	assert.Equal(t, model.UnknownValue, got[""].GPUProduct)

	require.Len(t, rep.got, 1)
	assert.Equal(t, errors.ErrNodeLookupFailed, rep.got[0].Code)
	assert.Equal(t, 1, g.calls["gone"], "empty node name must not be looked up")
}
