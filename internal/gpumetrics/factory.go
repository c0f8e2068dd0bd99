package gpumetrics

import (
	"context"
	"fmt"

	"k8s.io/client-go/kubernetes"

	"github.com/kubeadapt/gpustat/internal/config"
	"github.com/kubeadapt/gpustat/internal/discovery"
)

// New builds the provider selected by cfg.MetricsSource. kube is only used
// for dcgm-exporter discovery and may be nil when endpoints are static.
func New(cfg config.Config, kube kubernetes.Interface) (Provider, error) {
	switch cfg.MetricsSource {
	case "", config.MetricsSourceNone:
		return NoopProvider{}, nil

	case config.MetricsSourceDCGM:
		if len(cfg.DCGMExporterEndpoints) > 0 {
			eps := discovery.StaticEndpoints(cfg.DCGMExporterEndpoints, cfg.DCGMExporterPort)
			return NewDCGMProvider(nil, StaticEndpoints(eps)), nil
		}
		if kube == nil {
			return nil, fmt.Errorf("gpumetrics: dcgm discovery needs a kubernetes client")
		}
		return NewDCGMProvider(nil, func(ctx context.Context) ([]string, error) {
			return discovery.DetectDCGMEndpoints(ctx, kube, cfg.DCGMExporterNamespace, cfg.DCGMExporterPort)
		}), nil

	case config.MetricsSourcePrometheus:
		return NewPrometheusProvider(cfg.PrometheusURL, cfg.RequestTimeout)
	}
	return nil, fmt.Errorf("gpumetrics: unknown metrics source %q", cfg.MetricsSource)
}
