package gpumetrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"

	"github.com/kubeadapt/gpustat/pkg/model"
)

// Querier is the subset of the Prometheus HTTP API used here. promv1.API
// satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (prommodel.Value, promv1.Warnings, error)
}

// PrometheusProvider reads dcgm-exporter series from a Prometheus server
// that scrapes them.
type PrometheusProvider struct {
	api     Querier
	timeout time.Duration
	now     func() time.Time
}

// NewPrometheusProvider creates a provider for the Prometheus server at address.
func NewPrometheusProvider(address string, timeout time.Duration) (*PrometheusProvider, error) {
	client, err := promapi.NewClient(promapi.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("prometheus: creating client for %s: %w", address, err)
	}
	return NewPrometheusProviderWithQuerier(promv1.NewAPI(client), timeout), nil
}

// NewPrometheusProviderWithQuerier creates a provider over an existing API.
func NewPrometheusProviderWithQuerier(api Querier, timeout time.Duration) *PrometheusProvider {
	return &PrometheusProvider{api: api, timeout: timeout, now: time.Now}
}

// Name returns "prometheus".
func (p *PrometheusProvider) Name() string { return "prometheus" }

// Usage runs instant queries for framebuffer used and free memory and
// matches the series to pod GPUs.
func (p *PrometheusProvider) Usage(ctx context.Context, _ []model.GpuRecord) (map[model.GPUKey]Usage, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	ts := p.now()

	used, err := p.query(ctx, metricFBUsed, ts)
	if err != nil {
		return nil, err
	}
	free, err := p.query(ctx, metricFBFree, ts)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(used))
	for key, s := range used {
		if f, ok := free[key]; ok {
			s.TotalMiB = s.UsedMiB + f.UsedMiB
		}
		samples = append(samples, s)
	}
	return Match(samples), nil
}

// query runs one instant query and returns its samples keyed by device.
// The sample value is stored in UsedMiB.
func (p *PrometheusProvider) query(ctx context.Context, metric string, ts time.Time) (map[string]Sample, error) {
	val, warnings, err := p.api.Query(ctx, metric, ts)
	if err != nil {
		return nil, fmt.Errorf("prometheus: query %s: %w", metric, err)
	}
	if len(warnings) > 0 {
		slog.Debug("prometheus query warnings", "query", metric, "warnings", warnings)
	}

	if val == nil {
		return map[string]Sample{}, nil
	}
	vec, ok := val.(prommodel.Vector)
	if !ok {
		return nil, fmt.Errorf("prometheus: query %s returned %s, want vector", metric, val.Type())
	}

	out := make(map[string]Sample, len(vec))
	for _, s := range vec {
		v := float64(s.Value)
		if math.IsNaN(v) || math.IsInf(v, 0) || isSentinel(v) {
			continue
		}
		m := s.Metric
		key := deviceKey(m)
		if key == "" {
			continue
		}
		out[key] = Sample{
			Namespace: firstLabel(m, "exported_namespace", "namespace", "pod_namespace"),
			Pod:       firstLabel(m, "exported_pod", "pod", "pod_name"),
			Index:     deviceIndex(string(m["gpu"])),
			UUID:      firstLabel(m, "UUID", "uuid"),
			UsedMiB:   v,
		}
	}
	return out, nil
}

// deviceKey identifies a device across the used and free series.
func deviceKey(m prommodel.Metric) string {
	if uuid := firstLabel(m, "UUID", "uuid"); uuid != "" {
		return uuid
	}
	gpu := string(m["gpu"])
	if gpu == "" {
		return ""
	}
	return firstLabel(m, "Hostname", "instance") + "/" + gpu
}

// firstLabel returns the first non-empty value among the given label names.
// dcgm-exporter series scraped through a ServiceMonitor carry the workload
// pod in exported_pod when honorLabels is off.
func firstLabel(m prommodel.Metric, names ...string) string {
	for _, n := range names {
		if v := string(m[prommodel.LabelName(n)]); v != "" {
			return v
		}
	}
	return ""
}
