package gpumetrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kubeadapt/gpustat/pkg/model"
)

const scrapeTimeout = 5 * time.Second

// EndpointSource returns the dcgm-exporter base URLs to scrape.
type EndpointSource func(ctx context.Context) ([]string, error)

// StaticEndpoints returns an EndpointSource that always yields endpoints.
func StaticEndpoints(endpoints []string) EndpointSource {
	return func(context.Context) ([]string, error) {
		return endpoints, nil
	}
}

// DCGMProvider scrapes dcgm-exporter /metrics endpoints directly.
type DCGMProvider struct {
	client    *http.Client
	endpoints EndpointSource
}

// NewDCGMProvider creates a DCGMProvider. A nil client uses a default
// client with the scrape timeout.
func NewDCGMProvider(client *http.Client, endpoints EndpointSource) *DCGMProvider {
	if client == nil {
		client = &http.Client{Timeout: scrapeTimeout}
	}
	return &DCGMProvider{client: client, endpoints: endpoints}
}

// Name returns "dcgm".
func (p *DCGMProvider) Name() string { return "dcgm" }

// Usage scrapes every endpoint and matches the samples to pod GPUs.
// Individual endpoint failures are logged and skipped; an error is returned
// only when no endpoint could be scraped.
func (p *DCGMProvider) Usage(ctx context.Context, _ []model.GpuRecord) (map[model.GPUKey]Usage, error) {
	endpoints, err := p.endpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("dcgm: resolving endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("dcgm: no dcgm-exporter endpoints found")
	}

	var (
		samples []Sample
		failed  int
		lastErr error
	)
	for _, endpoint := range endpoints {
		body, err := scrapeEndpoint(ctx, p.client, endpoint)
		if err != nil {
			slog.Warn("failed to scrape dcgm-exporter",
				"endpoint", endpoint,
				"error", err,
			)
			failed++
			lastErr = err
			continue
		}
		samples = append(samples, ParseDCGMMemory(body)...)
	}

	if failed == len(endpoints) {
		return nil, fmt.Errorf("dcgm: all %d endpoints failed: %w", failed, lastErr)
	}

	slog.Debug("dcgm scrape complete",
		"endpoints", len(endpoints),
		"failed", failed,
		"samples", len(samples),
	)
	return Match(samples), nil
}

// scrapeEndpoint fetches raw Prometheus metrics text from a dcgm-exporter endpoint.
// The endpoint should be a base URL (e.g., "http://10.0.0.5:9400"); "/metrics" is appended.
func scrapeEndpoint(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	url := strings.TrimRight(endpoint, "/") + "/metrics"

	ctx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraping %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}

	return body, nil
}
