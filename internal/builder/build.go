package builder

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/model"
)

// Build constructs, commits and configures a graph from a description.
// When a later phase fails the half-built graph is shut down.
func (b *Builder) Build(ctx context.Context, desc *model.Description) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	g := newGraph(graph.New(graph.WithMaxIterations(b.maxIterations)))

	// First pass: create and initialize all blocks.
	if err := b.createBlocks(ctx, desc, g); err != nil {
		return nil, err
	}
	logger.Debug("Build: Block creation complete.", "block_count", len(g.Blocks))

	// Second pass: edges, then streamers.
	if err := linkBlocks(ctx, desc, g); err != nil {
		g.Shutdown()
		return nil, err
	}
	if err := attachStreamers(ctx, desc, g); err != nil {
		g.Shutdown()
		return nil, err
	}
	logger.Debug("Build: Linking complete.", "edge_count", len(g.EnumerateEdges()))

	if err := g.Commit(ctx); err != nil {
		g.Shutdown()
		return nil, fmt.Errorf("error committing graph: %w", err)
	}

	if err := g.ApplyProperties(ctx, desc); err != nil {
		g.Shutdown()
		return nil, err
	}

	logger.Info("🔧 Build: Graph construction successful.", "blocks", len(g.Blocks), "streamers", len(g.Rx)+len(g.Tx))
	return g, nil
}
