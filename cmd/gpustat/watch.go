package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/kubeadapt/gpustat/internal/agent"
	"github.com/kubeadapt/gpustat/internal/config"
	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/health"
	"github.com/kubeadapt/gpustat/internal/history"
	"github.com/kubeadapt/gpustat/internal/observability"
)

const (
	memoryPressureThreshold = 0.8
	memoryPressureInterval  = 30 * time.Second
	shutdownTimeout         = 5 * time.Second
)

func newWatchCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll on an interval and serve metrics, health and the latest report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), *cfg)
		},
	}
}

func runWatch(ctx context.Context, cfg config.Config) error {
	slog.Info("gpustat watch starting",
		"interval", cfg.WatchInterval,
		"selector", cfg.PodLabelSelector,
		"metrics_source", cfg.MetricsSource,
		"history", cfg.HistoryEnabled(),
	)

	metrics := observability.NewMetrics()
	a, err := newApp(ctx, cfg, metrics)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return err
	}

	store, err := history.Open(ctx, cfg)
	switch {
	case stderrors.Is(err, history.ErrDisabled):
		store = nil
	case err != nil:
		slog.Error("failed to open history", "error", err)
		return err
	default:
		defer store.Close()
	}

	mon := agent.NewMonitor(a.poller, agent.Options{
		Interval:  cfg.WatchInterval,
		Resolver:  a.resolver,
		History:   store,
		Collector: a.collector,
		Metrics:   metrics,
		Clock:     errors.RealClock{},
	})

	healthSrv := health.NewServer(cfg.HealthPort, metrics, mon, mon, a.nodeCache, cfg.DebugEndpoints)
	if err := healthSrv.Start(); err != nil {
		slog.Error("failed to start health server", "error", err)
		return err
	}
	slog.Info("health server listening", "addr", healthSrv.Addr())

	memMon := agent.NewMemoryPressureMonitor(memoryPressureThreshold, memoryPressureInterval, nil, func(uint64, uint64) {
		a.nodeCache.Clear()
		runtime.GC()
	})
	memMon.Start()

	// Blocks until the signal context is cancelled.
	runErr := mon.Run(ctx)

	memMon.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}

	slog.Info("gpustat watch stopped")
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("monitor: %w", runErr)
	}
	return nil
}
