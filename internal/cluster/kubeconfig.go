package cluster

import (
	"fmt"
	"log/slog"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// BuildKubeConfig creates a Kubernetes REST config. An explicit path wins;
// otherwise it tries in-cluster config first, then falls back to a
// kubeconfig file from $KUBECONFIG or the default ~/.kube/config.
func BuildKubeConfig(path string) (*rest.Config, error) {
	if path == "" {
		cfg, err := rest.InClusterConfig()
		if err == nil {
			slog.Debug("using in-cluster kubernetes config")
			return cfg, nil
		}

		path = os.Getenv("KUBECONFIG")
		if path == "" {
			path = clientcmd.RecommendedHomeFile
		}
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("cluster: building kubernetes config from %s: %w", path, err)
	}
	slog.Debug("using kubeconfig file", "path", path)
	return cfg, nil
}

// NewClient builds a clientset from BuildKubeConfig.
func NewClient(path string) (kubernetes.Interface, error) {
	cfg, err := BuildKubeConfig(path)
	if err != nil {
		return nil, err
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: creating kubernetes client: %w", err)
	}
	return client, nil
}
