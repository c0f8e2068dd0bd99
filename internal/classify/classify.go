// Package classify labels jobs as interactive or batch from their launch
// command.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kubeadapt/gpustat/internal/cluster"
	"github.com/kubeadapt/gpustat/internal/config"
	"github.com/kubeadapt/gpustat/internal/errors"
)

// DefaultPatterns are idle-loop fragments that keep interactive pods alive.
var DefaultPatterns = config.DefaultInteractivePatterns

// Classifier decides from a launch command (command followed by args)
// whether a job is interactive.
type Classifier interface {
	IsInteractive(command []string) bool
}

// PatternClassifier matches the space-joined, lowercased command against a
// set of substrings. It is a heuristic: a batch script that happens to
// contain "sleep 60" is classified interactive.
type PatternClassifier struct {
	patterns []string
}

// NewPatternClassifier creates a classifier for patterns. An empty list
// falls back to DefaultPatterns. Patterns are matched case-insensitively.
func NewPatternClassifier(patterns []string) *PatternClassifier {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &PatternClassifier{patterns: lowered}
}

// IsInteractive reports whether any pattern occurs in the command.
func (c *PatternClassifier) IsInteractive(command []string) bool {
	full := strings.ToLower(strings.Join(command, " "))
	for _, p := range c.patterns {
		if strings.Contains(full, p) {
			return true
		}
	}
	return false
}

// ModeResolver looks up a job's command and classifies it. Lookup failures
// classify the job as batch and are reported, never returned.
type ModeResolver struct {
	lookup     cluster.CommandLookup
	classifier Classifier
	reporter   errors.Reporter
}

// NewModeResolver creates a ModeResolver. A nil reporter discards
// degradations.
func NewModeResolver(lookup cluster.CommandLookup, classifier Classifier, reporter errors.Reporter) *ModeResolver {
	if reporter == nil {
		reporter = errors.Discard
	}
	return &ModeResolver{lookup: lookup, classifier: classifier, reporter: reporter}
}

// IsInteractive fetches the pod's command and classifies it.
func (r *ModeResolver) IsInteractive(ctx context.Context, namespace, podName string) (interactive bool) {
	defer func() {
		// Panics in the lookup count as a failed lookup.
		if p := recover(); p != nil {
			r.fail(namespace, podName, fmt.Errorf("panic: %v", p))
			interactive = false
		}
	}()

	command, err := r.lookup.PodCommand(ctx, namespace, podName)
	if err != nil {
		r.fail(namespace, podName, err)
		return false
	}
	return r.classifier.IsInteractive(command)
}

func (r *ModeResolver) fail(namespace, podName string, err error) {
	slog.Debug("command lookup failed, classifying as batch",
		"namespace", namespace,
		"pod", podName,
		"error", err,
	)
	r.reporter.Report(errors.Degradation{
		Code:      errors.ErrCommandLookupFailed,
		Message:   fmt.Sprintf("pod %s/%s: %v", namespace, podName, err),
		Component: "classify",
		Err:       err,
	})
}
