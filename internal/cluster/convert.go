package cluster

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// PodToRecord converts a Kubernetes pod to a RawPodRecord. Resource requests
// are rendered with Quantity.String, so "4", "500m" and "16Gi" survive as
// written in the pod spec.
func PodToRecord(pod *corev1.Pod) model.RawPodRecord {
	rec := model.RawPodRecord{
		Name:       pod.Name,
		Namespace:  pod.Namespace,
		NodeName:   pod.Spec.NodeName,
		Phase:      string(pod.Status.Phase),
		Labels:     copyLabels(pod.Labels),
		Containers: make([]model.RawContainer, 0, len(pod.Spec.Containers)),
	}
	for _, c := range pod.Spec.Containers {
		rec.Containers = append(rec.Containers, containerToRecord(c))
	}
	return rec
}

func containerToRecord(c corev1.Container) model.RawContainer {
	rc := model.RawContainer{
		Name:     c.Name,
		Command:  c.Command,
		Args:     c.Args,
		Requests: make(map[string]string, len(c.Resources.Requests)),
	}
	for name, q := range c.Resources.Requests {
		rc.Requests[string(name)] = q.String()
	}
	return rc
}

// NodeToInfo extracts the GPU product label from a node. A missing or empty
// label yields "unknown".
func NodeToInfo(node *corev1.Node, productLabelKey string) model.NodeInfo {
	product := node.Labels[productLabelKey]
	if product == "" {
		product = model.UnknownValue
	}
	return model.NodeInfo{Name: node.Name, GPUProduct: product}
}

// LaunchCommand returns the first container's command followed by its args.
func LaunchCommand(pod *corev1.Pod) []string {
	if len(pod.Spec.Containers) == 0 {
		return nil
	}
	c := pod.Spec.Containers[0]
	cmd := make([]string, 0, len(c.Command)+len(c.Args))
	cmd = append(cmd, c.Command...)
	return append(cmd, c.Args...)
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
