package builder

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/model"
	"github.com/vk/rfnocgo/internal/registry"
)

// createBlocks performs the first pass of graph creation.
func (b *Builder) createBlocks(ctx context.Context, desc *model.Description, g *Graph) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting block creation pass.")

	for _, def := range desc.Blocks {
		blockLogger := logger.With("block", def.ID, "type", def.Type)

		params, err := b.registry.CheckParams(def.Type, def.Params)
		if err != nil {
			return fmt.Errorf("block '%s' in %s: %w", def.ID, def.FSInformation, err)
		}
		rb, _ := b.registry.Lookup(def.Type)

		args := registry.BlockArgs{ID: def.ID, Params: params, Clock: b.clock}
		if b.registers != nil {
			args.Regs = b.registers(def.ID)
		}

		blk, err := rb.New(ctx, args)
		if err != nil {
			return fmt.Errorf("creating block '%s': %w", def.ID, err)
		}
		if err := blk.Base().InitProps(ctx); err != nil {
			return fmt.Errorf("creating block '%s': %w", def.ID, err)
		}
		g.Blocks[def.ID] = blk
		blockLogger.Debug("Created block.")
	}
	logger.Debug("Finished block creation pass.")
	return nil
}
