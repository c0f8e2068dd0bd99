package main

import (
	"context"
	"fmt"
	"log/slog"

	"k8s.io/client-go/kubernetes"

	"github.com/kubeadapt/gpustat/internal/classify"
	"github.com/kubeadapt/gpustat/internal/cluster"
	"github.com/kubeadapt/gpustat/internal/config"
	"github.com/kubeadapt/gpustat/internal/discovery"
	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/gpumetrics"
	"github.com/kubeadapt/gpustat/internal/observability"
	"github.com/kubeadapt/gpustat/internal/pipeline"
	"github.com/kubeadapt/gpustat/internal/store"
	"github.com/kubeadapt/gpustat/pkg/model"
)

// app holds the components shared by the live views and watch mode.
type app struct {
	cfg       config.Config
	kube      kubernetes.Interface
	collector *errors.Collector
	nodeCache *store.Cache[model.NodeInfo]
	poller    *pipeline.Poller
	resolver  *classify.ModeResolver
}

// newApp connects to the cluster and wires the poll pipeline. metrics may
// be nil outside watch mode.
func newApp(ctx context.Context, cfg config.Config, metrics *observability.Metrics) (*app, error) {
	kube, err := cluster.NewClient(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes client: %w", err)
	}

	preflight(ctx, kube, cfg)

	provider, err := gpumetrics.New(cfg, kube)
	if err != nil {
		return nil, err
	}

	collector := errors.NewCollector(errors.RealClock{})
	nodeCache := store.NewCache[model.NodeInfo]()
	kp := cluster.NewKubeProvider(kube, cfg.GPUProductLabelKey)

	poller := &pipeline.Poller{
		Pods:     kp,
		Nodes:    cluster.NewNodeResolver(kp, nodeCache, collector),
		Metrics:  provider,
		Reporter: collector,
		Selector: cfg.PodLabelSelector,
		Options: pipeline.ExtractOptions{
			UserLabelKey:       cfg.UserLabelKey,
			GPUResourceName:    cfg.GPUResourceName,
			DefaultMemoryTotal: cfg.DefaultGPUMemoryMiB,
		},
		Observe: metrics,
	}

	slog.Debug("poll pipeline ready",
		"selector", cfg.PodLabelSelector,
		"metrics_source", provider.Name(),
	)

	return &app{
		cfg:       cfg,
		kube:      kube,
		collector: collector,
		nodeCache: nodeCache,
		poller:    poller,
		resolver:  classify.NewModeResolver(kp, classify.NewPatternClassifier(cfg.InteractivePatterns), collector),
	}, nil
}

// preflight logs any RBAC permission the poll will be denied. Failures to
// run the review itself are logged and ignored.
func preflight(ctx context.Context, kube kubernetes.Interface, cfg config.Config) {
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	dcgmDiscovery := cfg.MetricsSource == config.MetricsSourceDCGM && len(cfg.DCGMExporterEndpoints) == 0
	denied, err := discovery.Preflight(ctx, kube, discovery.RequiredPermissions(dcgmDiscovery))
	if err != nil {
		slog.Debug("permission preflight skipped", "error", err)
		return
	}
	for _, p := range denied {
		slog.Warn("missing cluster permission", "permission", p.String())
	}
}
