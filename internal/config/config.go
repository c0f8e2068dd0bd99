package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metrics sources for GPU memory usage.
const (
	MetricsSourceNone       = "none"
	MetricsSourceDCGM       = "dcgm"
	MetricsSourcePrometheus = "prometheus"
)

// DefaultInteractivePatterns are the launch-command fragments of idle loops
// used to keep interactive pods alive.
var DefaultInteractivePatterns = []string{
	"sleep infinity",
	"while true",
	"tail -f /dev/null",
	"sleep 60",
}

// Config holds all gpustat configuration values.
type Config struct {
	// Cluster
	Kubeconfig         string `yaml:"kubeconfig"`         // GPUSTAT_KUBECONFIG, default: $KUBECONFIG or ~/.kube/config
	PodLabelSelector   string `yaml:"podLabelSelector"`   // GPUSTAT_POD_SELECTOR, default: "kueue.x-k8s.io/queue-name"
	UserLabelKey       string `yaml:"userLabelKey"`       // GPUSTAT_USER_LABEL, default: "eidf/user"
	GPUProductLabelKey string `yaml:"gpuProductLabelKey"` // GPUSTAT_GPU_PRODUCT_LABEL, default: "nvidia.com/gpu.product"
	GPUResourceName    string `yaml:"gpuResourceName"`    // GPUSTAT_GPU_RESOURCE, default: "nvidia.com/gpu"

	InteractivePatterns []string `yaml:"interactivePatterns"` // GPUSTAT_INTERACTIVE_PATTERNS, comma-separated

	// GPU memory metrics
	MetricsSource         string        `yaml:"metricsSource"`         // GPUSTAT_METRICS_SOURCE: none|dcgm|prometheus
	DefaultGPUMemoryMiB   float64       `yaml:"defaultGPUMemoryMiB"`   // GPUSTAT_GPU_MEMORY_MIB, default: 81920
	DCGMExporterPort      int           `yaml:"dcgmPort"`              // GPUSTAT_DCGM_PORT, default: 9400
	DCGMExporterNamespace string        `yaml:"dcgmNamespace"`         // GPUSTAT_DCGM_NAMESPACE, default: "" (all)
	DCGMExporterEndpoints []string      `yaml:"dcgmEndpoints"`         // GPUSTAT_DCGM_ENDPOINTS, comma-separated hosts
	PrometheusURL         string        `yaml:"prometheusURL"`         // GPUSTAT_PROMETHEUS_URL
	RequestTimeout        time.Duration `yaml:"requestTimeout"`        // GPUSTAT_REQUEST_TIMEOUT, default: 10s

	// History
	HistoryPath string `yaml:"historyPath"` // GPUSTAT_HISTORY_PATH, ".zst" suffix enables compression
	HistoryDSN  string `yaml:"historyDSN"`  // GPUSTAT_HISTORY_DSN, postgres connection string

	// Watch mode
	WatchInterval  time.Duration `yaml:"watchInterval"`  // GPUSTAT_WATCH_INTERVAL, default: 60s
	HealthPort     int           `yaml:"healthPort"`     // GPUSTAT_HEALTH_PORT, default: 8080
	DebugEndpoints bool          `yaml:"debugEndpoints"` // GPUSTAT_DEBUG_ENDPOINTS, default: false

	LogLevel string `yaml:"logLevel"` // GPUSTAT_LOG_LEVEL, default: "info"
}

// Defaults returns a Config with every field at its default value.
func Defaults() Config {
	return Config{
		PodLabelSelector:    "kueue.x-k8s.io/queue-name",
		UserLabelKey:        "eidf/user",
		GPUProductLabelKey:  "nvidia.com/gpu.product",
		GPUResourceName:     "nvidia.com/gpu",
		InteractivePatterns: append([]string(nil), DefaultInteractivePatterns...),
		MetricsSource:       MetricsSourceNone,
		DefaultGPUMemoryMiB: 80 * 1024,
		DCGMExporterPort:    9400,
		RequestTimeout:      10 * time.Second,
		WatchInterval:       60 * time.Second,
		HealthPort:          8080,
		LogLevel:            "info",
	}
}

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset values.
func Load() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a YAML config file on top of the defaults, then applies
// environment overrides. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Kubeconfig = envOrDefault("GPUSTAT_KUBECONFIG", cfg.Kubeconfig)
	cfg.PodLabelSelector = envOrDefault("GPUSTAT_POD_SELECTOR", cfg.PodLabelSelector)
	cfg.UserLabelKey = envOrDefault("GPUSTAT_USER_LABEL", cfg.UserLabelKey)
	cfg.GPUProductLabelKey = envOrDefault("GPUSTAT_GPU_PRODUCT_LABEL", cfg.GPUProductLabelKey)
	cfg.GPUResourceName = envOrDefault("GPUSTAT_GPU_RESOURCE", cfg.GPUResourceName)
	if p := parseStringSlice("GPUSTAT_INTERACTIVE_PATTERNS"); len(p) > 0 {
		cfg.InteractivePatterns = p
	}

	cfg.MetricsSource = strings.ToLower(envOrDefault("GPUSTAT_METRICS_SOURCE", cfg.MetricsSource))
	cfg.DefaultGPUMemoryMiB = parseFloat("GPUSTAT_GPU_MEMORY_MIB", cfg.DefaultGPUMemoryMiB)
	cfg.DCGMExporterPort = parseInt("GPUSTAT_DCGM_PORT", cfg.DCGMExporterPort)
	cfg.DCGMExporterNamespace = envOrDefault("GPUSTAT_DCGM_NAMESPACE", cfg.DCGMExporterNamespace)
	if eps := parseStringSlice("GPUSTAT_DCGM_ENDPOINTS"); len(eps) > 0 {
		cfg.DCGMExporterEndpoints = eps
	}
	cfg.PrometheusURL = envOrDefault("GPUSTAT_PROMETHEUS_URL", cfg.PrometheusURL)
	cfg.RequestTimeout = parseDuration("GPUSTAT_REQUEST_TIMEOUT", cfg.RequestTimeout)

	cfg.HistoryPath = envOrDefault("GPUSTAT_HISTORY_PATH", cfg.HistoryPath)
	cfg.HistoryDSN = envOrDefault("GPUSTAT_HISTORY_DSN", cfg.HistoryDSN)

	cfg.WatchInterval = parseDuration("GPUSTAT_WATCH_INTERVAL", cfg.WatchInterval)
	cfg.HealthPort = parseInt("GPUSTAT_HEALTH_PORT", cfg.HealthPort)
	cfg.DebugEndpoints = parseBool("GPUSTAT_DEBUG_ENDPOINTS", cfg.DebugEndpoints)

	cfg.LogLevel = strings.ToLower(envOrDefault("GPUSTAT_LOG_LEVEL", cfg.LogLevel))
}

// HistoryEnabled reports whether any history backend is configured.
func (c Config) HistoryEnabled() bool {
	return c.HistoryPath != "" || c.HistoryDSN != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func parseStringSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
