package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kubeadapt/gpustat/internal/config"
	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/history"
	"github.com/kubeadapt/gpustat/internal/pipeline"
	"github.com/kubeadapt/gpustat/internal/render"
	"github.com/kubeadapt/gpustat/internal/report"
	"github.com/kubeadapt/gpustat/pkg/model"
)

func runView(ctx context.Context, w io.Writer, cfg config.Config, flags *rootFlags) error {
	if flags.record && flags.view != viewCurrent {
		return fmt.Errorf("--record only applies to the %s view", viewCurrent)
	}
	plot := render.PlotOptions{NoColor: flags.noColor}

	switch flags.view {
	case viewUsage:
		return runHistoryView(ctx, w, cfg, func(records []model.GpuRecord) error {
			return render.Plot(w, report.Series("GPUs per user", pipeline.UserUsageSeries(records)), plot)
		})
	case viewMemory:
		return runHistoryView(ctx, w, cfg, func(records []model.GpuRecord) error {
			return render.Plot(w, report.Series("GPU memory usage per user (%)", pipeline.UserMemorySeries(records)), plot)
		})
	case viewTime:
		return runHistoryView(ctx, w, cfg, func(records []model.GpuRecord) error {
			points := pipeline.TotalsSeries(records)
			if err := render.Table(w, report.Totals(points)); err != nil {
				return err
			}
			return render.Plot(w, report.TotalsSeries(points), plot)
		})
	}
	return runCurrent(ctx, w, cfg, flags.record)
}

// runCurrent polls the cluster once and prints the three tables. Only a
// failed pod listing is fatal.
func runCurrent(ctx context.Context, w io.Writer, cfg config.Config, record bool) error {
	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}

	ts := time.Now()
	a.poller.Now = func() time.Time { return ts }
	records, err := a.poller.Poll(ctx)
	if err != nil {
		slog.Error("poll failed", "error", err)
		return err
	}
	rep := pipeline.NewReport(ctx, uuid.NewString(), ts, records, a.resolver)

	if record {
		recordSnapshot(ctx, cfg, rep, a.collector)
	}

	if err := render.Tables(w, report.Current(rep)); err != nil {
		return err
	}
	return render.Degradations(w, a.collector.Messages())
}

// recordSnapshot appends the report's records to history. Failures become
// degradations so the tables still print.
func recordSnapshot(ctx context.Context, cfg config.Config, rep *model.Report, collector *errors.Collector) {
	store, err := history.Open(ctx, cfg)
	if err == nil {
		defer store.Close()
		err = store.Append(ctx, history.FromRecords(rep.PollID, rep.Timestamp, rep.Records))
	}
	if err == nil {
		slog.Info("snapshot recorded", "poll_id", rep.PollID, "gpus", len(rep.Records))
		return
	}

	slog.Warn("recording snapshot failed", "error", err)
	collector.Report(errors.Degradation{
		Code:      errors.ErrHistoryUnavailable,
		Message:   fmt.Sprintf("snapshot not recorded: %v", err),
		Component: "history",
		Err:       err,
	})
}

// runHistoryView loads every stored snapshot and hands the flattened,
// re-derived records to show. The cluster is not contacted.
func runHistoryView(ctx context.Context, w io.Writer, cfg config.Config, show func([]model.GpuRecord) error) error {
	store, err := history.Open(ctx, cfg)
	if stderrors.Is(err, history.ErrDisabled) {
		return fmt.Errorf("history views need GPUSTAT_HISTORY_PATH or GPUSTAT_HISTORY_DSN: %w", err)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	snaps, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	slog.Debug("history loaded", "snapshots", len(snaps))

	if len(snaps) == 0 {
		_, err := fmt.Fprintln(w, "No history recorded yet.")
		return err
	}
	return show(pipeline.Rederive(history.Flatten(snaps)))
}
