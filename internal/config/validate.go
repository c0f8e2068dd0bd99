package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.UserLabelKey == "" {
		return fmt.Errorf("config: GPUSTAT_USER_LABEL must not be empty")
	}
	if c.GPUProductLabelKey == "" {
		return fmt.Errorf("config: GPUSTAT_GPU_PRODUCT_LABEL must not be empty")
	}
	if c.GPUResourceName == "" {
		return fmt.Errorf("config: GPUSTAT_GPU_RESOURCE must not be empty")
	}

	switch c.MetricsSource {
	case MetricsSourceNone, MetricsSourceDCGM:
	case MetricsSourcePrometheus:
		if c.PrometheusURL == "" {
			return fmt.Errorf("config: GPUSTAT_PROMETHEUS_URL is required when metrics source is %q", MetricsSourcePrometheus)
		}
		if !strings.HasPrefix(c.PrometheusURL, "http://") && !strings.HasPrefix(c.PrometheusURL, "https://") {
			return fmt.Errorf("config: GPUSTAT_PROMETHEUS_URL must be an http(s) URL, got %q", c.PrometheusURL)
		}
	default:
		return fmt.Errorf("config: GPUSTAT_METRICS_SOURCE must be one of none, dcgm, prometheus, got %q", c.MetricsSource)
	}

	if c.DefaultGPUMemoryMiB <= 0 {
		return fmt.Errorf("config: DefaultGPUMemoryMiB must be > 0, got %v", c.DefaultGPUMemoryMiB)
	}

	if c.DCGMExporterPort < 1 || c.DCGMExporterPort > 65535 {
		return fmt.Errorf("config: DCGMExporterPort must be 1-65535, got %d", c.DCGMExporterPort)
	}

	if c.HistoryPath != "" && c.HistoryDSN != "" {
		return fmt.Errorf("config: GPUSTAT_HISTORY_PATH and GPUSTAT_HISTORY_DSN are mutually exclusive")
	}

	if c.WatchInterval < 10*time.Second {
		return fmt.Errorf("config: WatchInterval must be >= 10s, got %v", c.WatchInterval)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: RequestTimeout must be > 0, got %v", c.RequestTimeout)
	}

	if c.HealthPort < 1 || c.HealthPort > 65535 {
		return fmt.Errorf("config: HealthPort must be 1-65535, got %d", c.HealthPort)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseLogLevel maps the configured level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: GPUSTAT_LOG_LEVEL must be one of debug, info, warn, error, got %q", level)
}
