package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/kubeadapt/gpustat/internal/config"
)

// Views selectable with --view.
const (
	viewCurrent = "current"
	viewUsage   = "usage"
	viewMemory  = "memory"
	viewTime    = "time"
)

var validViews = []string{viewCurrent, viewUsage, viewMemory, viewTime}

type rootFlags struct {
	view       string
	record     bool
	configPath string
	noColor    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	var cfg config.Config

	root := &cobra.Command{
		Use:   "gpustat",
		Short: "Report GPU allocation and memory utilization of Kubernetes pods",
		Long: "gpustat lists running GPU pods, expands them into one record per GPU, and\n" +
			"prints per-GPU-type, per-user and per-job tables. History views plot\n" +
			"recorded snapshots over time.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateView(flags.view); err != nil {
				return err
			}
			return runView(cmd.Context(), cmd.OutOrStdout(), cfg, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("GPUSTAT_CONFIG"), "path to a YAML config file")
	root.Flags().StringVar(&flags.view, "view", viewCurrent, "report to print: "+strings.Join(validViews, "|"))
	root.Flags().BoolVar(&flags.record, "record", false, "append the live poll to history (current view only)")
	root.Flags().BoolVar(&flags.noColor, "no-color", false, "disable ANSI colors in plots")

	root.AddCommand(newWatchCommand(&cfg))
	return root
}

func validateView(view string) error {
	for _, v := range validViews {
		if view == v {
			return nil
		}
	}
	return fmt.Errorf("unknown view %q: valid views are %s", view, strings.Join(validViews, ", "))
}

// loadConfig reads the optional YAML file and env overrides, validates the
// result and installs the JSON logger. stdout is reserved for the report.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}
