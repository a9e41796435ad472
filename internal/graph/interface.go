package graph

import (
	"context"

	"github.com/vk/rfnocgo/internal/node"
)

// Block is anything built on a node. Concrete blocks embed *node.Node and
// inherit Base from it.
type Block interface {
	Base() *node.Node
}

// Graph is the surface used by the builder, the CLI and the application.
//
// # Usage Patterns
//
// **Builder** connects blocks and commits:
//
//	if err := g.Connect(ctx, radio, ddc, graph.NewEdge(0, 0, graph.Dynamic, true)); err != nil {
//	    return err
//	}
//	return g.Commit(ctx)
//
// **CLI** lists the topology:
//
//	for _, e := range g.EnumerateEdges() {
//	    fmt.Println(e)
//	}
//
// Thread-safety: implementations must be safe to call concurrently.
type Graph interface {
	// Connect adds an edge between two blocks, adding the blocks when they
	// are new.
	Connect(ctx context.Context, src, dst Block, e Edge) error

	// Disconnect removes an edge. Blocks left without edges leave the graph.
	Disconnect(ctx context.Context, src, dst Block, e Edge) error

	// Commit decrements the release counter and, when it reaches zero,
	// validates the topology and runs the initial resolution pass.
	Commit(ctx context.Context) error

	// Release increments the release counter.
	Release()

	// Shutdown stops resolution and action delivery for good.
	Shutdown()

	// EnumerateEdges returns every edge once, in insertion order.
	EnumerateEdges() []Edge

	// Nodes returns the member nodes in insertion order.
	Nodes() []*node.Node

	// Node looks a member up by id.
	Node(id string) (*node.Node, bool)

	// PropertySnapshot returns the USER and edge property values of every
	// member, keyed by node id.
	PropertySnapshot() map[string][]node.PropertyValue
}
