package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kubeadapt/gpustat/internal/errors"
	"github.com/kubeadapt/gpustat/internal/store"
	"github.com/kubeadapt/gpustat/pkg/model"
)

// NodeGetter reads metadata for one node.
type NodeGetter interface {
	GetNode(ctx context.Context, name string) (model.NodeInfo, error)
}

// NodeResolver resolves node metadata with at most one lookup per node and
// poll. The cache holds only the current poll's nodes, so relabelled or
// recreated nodes are picked up on the next Resolve.
type NodeResolver struct {
	nodes    NodeGetter
	cache    *store.Cache[model.NodeInfo]
	reporter errors.Reporter
}

// NewNodeResolver creates a NodeResolver. A nil cache gets a fresh one; a
// nil reporter discards degradations.
func NewNodeResolver(nodes NodeGetter, cache *store.Cache[model.NodeInfo], reporter errors.Reporter) *NodeResolver {
	if cache == nil {
		cache = store.NewCache[model.NodeInfo]()
	}
	if reporter == nil {
		reporter = errors.Discard
	}
	return &NodeResolver{nodes: nodes, cache: cache, reporter: reporter}
}

// Resolve looks up each distinct node name once. A failed lookup maps the
// node to an "unknown" product and reports a degradation; it never fails.
func (r *NodeResolver) Resolve(ctx context.Context, names []string) map[string]model.NodeInfo {
	r.cache.Clear()

	out := make(map[string]model.NodeInfo, len(names))
	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		if name == "" {
			out[name] = model.NodeInfo{GPUProduct: model.UnknownValue}
			continue
		}

		info, err := r.cache.GetOrLoad(ctx, name, r.load)
		if err != nil {
			slog.Warn("node lookup failed", "node", name, "error", err)
			r.reporter.Report(errors.Degradation{
				Code:      errors.ErrNodeLookupFailed,
				Message:   fmt.Sprintf("node %s: %v", name, err),
				Component: "cluster.nodes",
				Err:       err,
			})
			info = model.NodeInfo{Name: name, GPUProduct: model.UnknownValue}
		}
		out[name] = info
	}
	return out
}

func (r *NodeResolver) load(ctx context.Context, name string) (model.NodeInfo, error) {
	return r.nodes.GetNode(ctx, name)
}
