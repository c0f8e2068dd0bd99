// Package cluster reads GPU pods, node metadata and launch commands from
// the Kubernetes API.
package cluster

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// listPageSize bounds each pod list request.
const listPageSize = 500

// Provider lists GPU pods and resolves node metadata.
type Provider interface {
	ListGpuPods(ctx context.Context, labelSelector string) ([]model.RawPodRecord, error)
	GetNode(ctx context.Context, name string) (model.NodeInfo, error)
}

// CommandLookup fetches a pod's launch command for interactivity checks.
type CommandLookup interface {
	PodCommand(ctx context.Context, namespace, name string) ([]string, error)
}

// KubeProvider implements Provider and CommandLookup over client-go.
type KubeProvider struct {
	client          kubernetes.Interface
	productLabelKey string
}

// NewKubeProvider creates a KubeProvider. productLabelKey is the node label
// holding the GPU product name.
func NewKubeProvider(client kubernetes.Interface, productLabelKey string) *KubeProvider {
	return &KubeProvider{client: client, productLabelKey: productLabelKey}
}

// ListGpuPods lists pods in all namespaces matching labelSelector. Phase
// and GPU filtering happen during extraction.
func (p *KubeProvider) ListGpuPods(ctx context.Context, labelSelector string) ([]model.RawPodRecord, error) {
	var (
		out  []model.RawPodRecord
		cont string
	)
	for {
		list, err := p.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
			LabelSelector: labelSelector,
			Limit:         listPageSize,
			Continue:      cont,
		})
		if err != nil {
			return nil, fmt.Errorf("cluster: listing pods (selector %q): %w", labelSelector, err)
		}
		for i := range list.Items {
			out = append(out, PodToRecord(&list.Items[i]))
		}
		cont = list.Continue
		if cont == "" {
			return out, nil
		}
	}
}

// GetNode reads one node and returns its GPU product.
func (p *KubeProvider) GetNode(ctx context.Context, name string) (model.NodeInfo, error) {
	node, err := p.client.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return model.NodeInfo{}, fmt.Errorf("cluster: getting node %s: %w", name, err)
	}
	return NodeToInfo(node, p.productLabelKey), nil
}

// PodCommand returns the first container's command and args.
func (p *KubeProvider) PodCommand(ctx context.Context, namespace, name string) ([]string, error) {
	pod, err := p.client.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("cluster: getting pod %s/%s: %w", namespace, name, err)
	}
	return LaunchCommand(pod), nil
}
