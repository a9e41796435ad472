package builder

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/model"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
)

// ApplyProperties writes the user property values of desc in file order.
// Each write resolves before the next one. Blocks the graph does not know
// are skipped with a warning, so a changed file can be reapplied to a
// running graph.
func (g *Graph) ApplyProperties(ctx context.Context, desc *model.Description) error {
	logger := ctxlog.FromContext(ctx)
	applied := 0
	for _, def := range desc.Blocks {
		blk, ok := g.Blocks[def.ID]
		if !ok {
			logger.Warn("Skipping properties of unknown block.", "block", def.ID)
			continue
		}
		for _, p := range def.Properties {
			if err := blk.Base().SetPropertyAny(ctx, p.ID, p.Value, p.Instance); err != nil {
				return fmt.Errorf("block '%s', property '%s': %w", def.ID, p, err)
			}
			applied++
		}
	}
	logger.Debug("Applied user properties.", "count", applied)
	return nil
}

// UserProperties returns the current user property values of every block.
func (g *Graph) UserProperties() map[string][]node.PropertyValue {
	out := make(map[string][]node.PropertyValue, len(g.Blocks))
	for id, blk := range g.Blocks {
		for _, v := range blk.Base().Snapshot() {
			if v.Source.Type == property.User && v.Value != nil {
				out[id] = append(out[id], v)
			}
		}
	}
	return out
}
