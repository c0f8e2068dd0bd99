// Package discovery finds dcgm-exporter endpoints and checks the RBAC
// permissions gpustat needs.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// dcgmSelectors are the pod labels used by the NVIDIA GPU operator and the
// standalone dcgm-exporter Helm chart.
var dcgmSelectors = []string{
	"app=nvidia-dcgm-exporter",
	"app.kubernetes.io/name=dcgm-exporter",
}

// DetectDCGMEndpoints probes the cluster for dcgm-exporter pods and returns
// their scrape URLs ("http://<podIP>:<port>"). An empty namespace searches
// all namespaces. It returns no endpoints and no error when the cluster has
// no GPU nodes. Safe to call repeatedly for endpoint refresh.
func DetectDCGMEndpoints(ctx context.Context, client kubernetes.Interface, namespace string, port int) ([]string, error) {
	nodeList, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("discovery: listing nodes: %w", err)
	}

	hasGPU := false
	for i := range nodeList.Items {
		if HasGPUCapacity(&nodeList.Items[i]) {
			hasGPU = true
			break
		}
	}
	if !hasGPU {
		return nil, nil
	}

	for _, sel := range dcgmSelectors {
		pods, err := client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: sel,
		})
		if err != nil || len(pods.Items) == 0 {
			continue
		}
		var endpoints []string
		for _, pod := range pods.Items {
			if pod.Status.PodIP != "" && pod.Status.Phase == v1.PodRunning {
				endpoints = append(endpoints, endpointURL(pod.Status.PodIP, port))
			}
		}
		if len(endpoints) > 0 {
			return endpoints, nil
		}
	}

	return nil, nil
}

// HasGPUCapacity reports whether a node advertises NVIDIA GPUs, either whole
// devices or MIG slices.
func HasGPUCapacity(node *v1.Node) bool {
	if q, ok := node.Status.Allocatable[v1.ResourceName("nvidia.com/gpu")]; ok && q.Value() > 0 {
		return true
	}
	for rName := range node.Status.Allocatable {
		if strings.HasPrefix(string(rName), "nvidia.com/mig-") {
			return true
		}
	}
	return false
}

// StaticEndpoints turns configured hosts into scrape URLs. Entries that
// already carry a scheme are kept as-is; bare hosts get the given port.
func StaticEndpoints(hosts []string, port int) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		switch {
		case h == "":
			continue
		case strings.HasPrefix(h, "http://"), strings.HasPrefix(h, "https://"):
			out = append(out, h)
		default:
			if _, _, err := net.SplitHostPort(h); err == nil {
				out = append(out, "http://"+h)
				continue
			}
			out = append(out, endpointURL(h, port))
		}
	}
	return out
}

func endpointURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
