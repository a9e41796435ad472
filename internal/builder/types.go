package builder

import (
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/streamer"
)

// Graph is the primary artifact of the builder: the committed resolution
// engine plus id lookups for everything the description created.
type Graph struct {
	*graph.Manager

	// Blocks holds every block by canonical id, including blocks without
	// edges, which stay outside the engine.
	Blocks map[string]graph.Block
	// Rx and Tx hold the streamers by name.
	Rx map[string]*streamer.RxStreamer
	Tx map[string]*streamer.TxStreamer
}

func newGraph(m *graph.Manager) *Graph {
	return &Graph{
		Manager: m,
		Blocks:  make(map[string]graph.Block),
		Rx:      make(map[string]*streamer.RxStreamer),
		Tx:      make(map[string]*streamer.TxStreamer),
	}
}

// Block looks a block up by canonical id.
func (g *Graph) Block(id string) (graph.Block, bool) {
	b, ok := g.Blocks[id]
	return b, ok
}
