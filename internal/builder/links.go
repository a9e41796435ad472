package builder

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/model"
	"github.com/vk/rfnocgo/internal/streamer"
)

// linkBlocks performs the second pass, turning every connection into an edge.
func linkBlocks(ctx context.Context, desc *model.Description, g *Graph) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting linking pass.")

	for _, c := range desc.Connections {
		src, ok := g.Blocks[c.From.Block.String()]
		if !ok {
			return fmt.Errorf("connection %s: no block '%s'", c, c.From.Block)
		}
		dst, ok := g.Blocks[c.To.Block.String()]
		if !ok {
			return fmt.Errorf("connection %s: no block '%s'", c, c.To.Block)
		}
		kind, err := graph.ParseEdgeKind(c.Kind)
		if err != nil {
			return fmt.Errorf("connection %s: %w", c, err)
		}

		edge := graph.NewEdge(c.From.Port, c.To.Port, kind, c.Forward)
		edge.PropagationActive = c.Propagate
		logger.Debug("Linking blocks.", "edge", edge.Describe())
		if err := g.Connect(ctx, src, dst, edge); err != nil {
			return fmt.Errorf("connection %s in %s: %w", c, c.FSInformation, err)
		}
	}

	for id, blk := range g.Blocks {
		if _, inGraph := g.Node(blk.Base().ID()); !inGraph {
			logger.Warn("Block has no connections, it stays outside the graph.", "block", id)
		}
	}
	return nil
}

// attachStreamers connects RX streamers after their block port and TX
// streamers before it.
func attachStreamers(ctx context.Context, desc *model.Description, g *Graph) error {
	logger := ctxlog.FromContext(ctx)

	for _, s := range desc.Streamers {
		blk, ok := g.Blocks[s.Port.Block.String()]
		if !ok {
			return fmt.Errorf("streamer '%s': no block '%s'", s.Name, s.Port.Block)
		}

		var err error
		switch s.Direction {
		case model.RX:
			rx := streamer.NewRxStreamer(s.Name, s.QueueDepth)
			if err = rx.InitProps(ctx); err == nil {
				err = g.Connect(ctx, blk, rx, graph.NewEdge(s.Port.Port, 0, graph.Dynamic, true))
			}
			g.Rx[s.Name] = rx
		case model.TX:
			tx := streamer.NewTxStreamer(s.Name, s.QueueDepth)
			if err = tx.InitProps(ctx); err == nil {
				err = g.Connect(ctx, tx, blk, graph.NewEdge(0, s.Port.Port, graph.Dynamic, true))
			}
			g.Tx[s.Name] = tx
		default:
			err = fmt.Errorf("unknown direction '%s'", s.Direction)
		}
		if err != nil {
			return fmt.Errorf("streamer '%s' in %s: %w", s.Name, s.FSInformation, err)
		}
		logger.Debug("Attached streamer.", "streamer", s.Name, "direction", s.Direction, "port", s.Port.String())
	}
	return nil
}
