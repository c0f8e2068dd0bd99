package gpumetrics

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// sentinelThreshold is the threshold above which DCGM metric values are
// treated as "blank" sentinel values (~1.8e19) and rejected.
const sentinelThreshold = 1e15

// Framebuffer metrics published by dcgm-exporter, all in MiB.
const (
	metricFBUsed  = "DCGM_FI_DEV_FB_USED"
	metricFBFree  = "DCGM_FI_DEV_FB_FREE"
	metricFBTotal = "DCGM_FI_DEV_FB_TOTAL"
)

type dcgmLabels struct {
	gpu       string
	uuid      string
	podName   string
	namespace string
}

// parsedSample represents a single parsed Prometheus metric sample.
type parsedSample struct {
	name   string
	labels dcgmLabels
	value  float64
}

type deviceMemory struct {
	labels           dcgmLabels
	used, free, tot  float64
	hasUsed, hasFree bool
	hasTotal         bool
}

// ParseDCGMMemory parses Prometheus exposition text from dcgm-exporter and
// returns one Sample per device that reports framebuffer usage. It handles
// both old-style (pod_name, pod_namespace) and new-style (pod, namespace)
// label schemas. When FB_TOTAL is absent, the total is FB_USED + FB_FREE.
func ParseDCGMMemory(data []byte) []Sample {
	devices := make(map[string]*deviceMemory)
	var order []string

	for _, s := range parsePrometheusText(data) {
		if s.labels.uuid == "" && s.labels.gpu == "" {
			continue
		}
		if isSentinel(s.value) {
			continue
		}

		key := s.labels.uuid
		if key == "" {
			key = s.labels.gpu
		}
		d, ok := devices[key]
		if !ok {
			d = &deviceMemory{labels: s.labels}
			devices[key] = d
			order = append(order, key)
		}

		switch s.name {
		case metricFBUsed:
			d.used, d.hasUsed = s.value, true
		case metricFBFree:
			d.free, d.hasFree = s.value, true
		case metricFBTotal:
			d.tot, d.hasTotal = s.value, true
		}
	}

	samples := make([]Sample, 0, len(order))
	for _, key := range order {
		d := devices[key]
		if !d.hasUsed {
			continue
		}
		total := d.tot
		if !d.hasTotal && d.hasFree {
			total = d.used + d.free
		}
		samples = append(samples, Sample{
			Namespace: d.labels.namespace,
			Pod:       d.labels.podName,
			Index:     deviceIndex(d.labels.gpu),
			UUID:      d.labels.uuid,
			UsedMiB:   d.used,
			TotalMiB:  total,
		})
	}
	return samples
}

func deviceIndex(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

// parsePrometheusText parses Prometheus exposition text format line-by-line,
// extracting metric samples with their labels and values.
func parsePrometheusText(data []byte) []parsedSample {
	var samples []parsedSample
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		s, ok := parseSampleLine(line)
		if !ok {
			continue
		}
		samples = append(samples, s)
	}

	return samples
}

// parseSampleLine parses a single Prometheus metric line:
//
//	metric_name{label1="val1",label2="val2"} value [timestamp]
func parseSampleLine(line string) (parsedSample, bool) {
	var s parsedSample

	braceStart := strings.IndexByte(line, '{')
	if braceStart < 0 {
		// No labels: "name value"
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return s, false
		}
		s.name = parts[0]
		v, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return s, false
		}
		s.value = v
		return s, true
	}

	s.name = line[:braceStart]

	braceEnd := strings.LastIndexByte(line, '}')
	if braceEnd <= braceStart {
		return s, false
	}

	s.labels = parseLabels(line[braceStart+1 : braceEnd])

	parts := strings.Fields(line[braceEnd+1:])
	if len(parts) == 0 {
		return s, false
	}
	v, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return s, false
	}
	s.value = v

	return s, true
}

// parseLabels parses the label portion of a Prometheus metric line:
//
//	label1="val1",label2="val2"
//
// It handles escaped characters within quoted label values.
func parseLabels(s string) dcgmLabels {
	var l dcgmLabels
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		if len(s) == 0 || s[0] != '"' {
			break
		}
		s = s[1:]

		// Read value until unescaped closing quote
		var val strings.Builder
		i := 0
		for i < len(s) {
			if s[i] == '\\' && i+1 < len(s) {
				switch s[i+1] {
				case '"':
					val.WriteByte('"')
				case '\\':
					val.WriteByte('\\')
				case 'n':
					val.WriteByte('\n')
				default:
					val.WriteByte('\\')
					val.WriteByte(s[i+1])
				}
				i += 2
				continue
			}
			if s[i] == '"' {
				break
			}
			val.WriteByte(s[i])
			i++
		}

		value := val.String()
		if i < len(s) {
			s = s[i+1:]
		} else {
			s = ""
		}
		if len(s) > 0 && s[0] == ',' {
			s = s[1:]
		}

		// New-style labels always overwrite; old-style only set if empty.
		switch key {
		case "gpu":
			l.gpu = value
		case "UUID", "uuid":
			l.uuid = value
		case "pod":
			l.podName = value
		case "namespace":
			l.namespace = value
		case "pod_name":
			if l.podName == "" {
				l.podName = value
			}
		case "pod_namespace":
			if l.namespace == "" {
				l.namespace = value
			}
		}
	}
	return l
}

// isSentinel returns true if the value is a DCGM sentinel ("blank") value.
func isSentinel(v float64) bool {
	return v > sentinelThreshold
}
