// Package report formats aggregates into display tables and plot series.
// Every number is formatted here; the renderer only draws strings.
package report

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kubeadapt/gpustat/internal/pipeline"
	"github.com/kubeadapt/gpustat/pkg/model"
)

// TimeLayout formats timestamps in table cells and plot labels.
const TimeLayout = "2006-01-02 15:04"

// Status and mode strings of the job table.
const (
	StatusInactive  = "Inactive"
	StatusActive    = "Active"
	ModeInteractive = "Interactive"
	ModeBatch       = "Batch"
)

func pct(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

// round1 rounds to the one decimal shown in tables.
func round1(v float64) float64 { return math.Round(v*10) / 10 }

// GPUTypes builds the "GPU Count by Type" table.
func GPUTypes(t model.GPUTypeTable) model.Table {
	out := model.Table{
		Title:   "GPU Count by Type",
		Headers: []string{"GPU Type", "Count"},
		Align:   []model.Alignment{model.AlignLeft, model.AlignRight},
		Rows:    make([][]string, 0, len(t.Rows)),
		Footer:  []string{"TOTAL", strconv.Itoa(t.Total)},
	}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, []string{r.GPUName, strconv.Itoa(r.Count)})
	}
	return out
}

// Users builds the "User Statistics" table.
func Users(t model.UserTable) model.Table {
	out := model.Table{
		Title:   "User Statistics",
		Headers: []string{"Username", "GPUs in use", "Avg Memory Usage (%)", "Inactive GPUs"},
		Align:   []model.Alignment{model.AlignLeft, model.AlignRight, model.AlignRight, model.AlignRight},
		Rows:    make([][]string, 0, len(t.Rows)),
		Footer: []string{
			"TOTAL",
			strconv.Itoa(t.TotalGPUs),
			pct(t.AvgMemUsage),
			strconv.Itoa(t.TotalInactive),
		},
	}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, []string{
			r.Username,
			strconv.Itoa(r.Count),
			pct(r.MeanMem),
			strconv.Itoa(r.InactiveCount),
		})
	}
	return out
}

// Jobs builds the "Job Statistics" table.
func Jobs(t model.JobTable) model.Table {
	out := model.Table{
		Title: "Job Statistics",
		Headers: []string{
			"Job Name", "Namespace", "User", "Node", "CPUs", "RAM (GB)", "GPUs",
			"GPU Mem (%)", "Status", "Mode",
		},
		Align: []model.Alignment{
			model.AlignLeft, model.AlignLeft, model.AlignLeft, model.AlignLeft,
			model.AlignRight, model.AlignRight, model.AlignRight, model.AlignRight,
			model.AlignCenter, model.AlignCenter,
		},
		Rows: make([][]string, 0, len(t.Rows)),
		Footer: []string{
			fmt.Sprintf("Jobs: %d", t.JobCount),
			"", "", "",
			strconv.Itoa(t.TotalCPUs),
			strconv.Itoa(t.TotalMemory),
			strconv.Itoa(t.TotalGPUs),
			pct(t.AvgMemUsage),
			fmt.Sprintf("Inactive: %d", t.InactiveJobs),
			fmt.Sprintf("Interactive: %d", t.InteractiveJobs),
		},
	}
	for _, r := range t.Rows {
		status := StatusActive
		if r.AllInactive {
			status = StatusInactive
		}
		mode := ModeBatch
		if r.Interactive {
			mode = ModeInteractive
		}
		out.Rows = append(out.Rows, []string{
			r.PodName,
			r.Namespace,
			r.Username,
			r.NodeName,
			strconv.Itoa(r.CPURequested),
			strconv.Itoa(r.MemoryRequested),
			strconv.Itoa(r.GPUCount),
			pct(r.MeanMem),
			status,
			mode,
		})
	}
	return out
}

// Current returns the three live-view tables in display order.
func Current(r *model.Report) []model.Table {
	return []model.Table{GPUTypes(r.GPUTypes), Users(r.Users), Jobs(r.Jobs)}
}

// Series converts a per-user time series into a plot series.
func Series(title string, ts pipeline.TimeSeries) model.Series {
	out := model.Series{
		Title:   title,
		Labels:  make([]string, len(ts.Timestamps)),
		Legends: append([]string(nil), ts.Names...),
		Values:  make([][]float64, len(ts.Values)),
	}
	for i, t := range ts.Timestamps {
		out.Labels[i] = t.Local().Format(TimeLayout)
	}
	for i, v := range ts.Values {
		out.Values[i] = make([]float64, len(v))
		for j, x := range v {
			out.Values[i][j] = round1(x)
		}
	}
	return out
}

// Totals builds the per-snapshot totals table of the time view.
func Totals(points []pipeline.TotalsPoint) model.Table {
	out := model.Table{
		Title:   "GPU Usage Over Time",
		Headers: []string{"Timestamp", "GPUs", "Inactive GPUs", "Users", "Avg Memory Usage (%)"},
		Align:   []model.Alignment{model.AlignLeft, model.AlignRight, model.AlignRight, model.AlignRight, model.AlignRight},
		Rows:    make([][]string, 0, len(points)),
	}
	for _, p := range points {
		out.Rows = append(out.Rows, []string{
			p.Timestamp.Local().Format(TimeLayout),
			strconv.Itoa(p.TotalGPUs),
			strconv.Itoa(p.InactiveGPUs),
			strconv.Itoa(p.Users),
			pct(p.AvgMemUsage),
		})
	}
	return out
}

// TotalsSeries plots total and inactive GPUs per snapshot.
func TotalsSeries(points []pipeline.TotalsPoint) model.Series {
	out := model.Series{
		Title:   "Total GPUs over time",
		Labels:  make([]string, len(points)),
		Legends: []string{"GPUs", "Inactive GPUs"},
		Values:  [][]float64{make([]float64, len(points)), make([]float64, len(points))},
	}
	for i, p := range points {
		out.Labels[i] = p.Timestamp.Local().Format(TimeLayout)
		out.Values[0][i] = float64(p.TotalGPUs)
		out.Values[1][i] = float64(p.InactiveGPUs)
	}
	return out
}
