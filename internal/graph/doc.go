// Package graph owns the topology of connected blocks and drives the two
// graph-wide mechanisms built on top of it: property resolution and action
// delivery.
//
// # Topology
//
// Blocks are joined by ported, directed edges. Each edge is either a
// forward edge or a back edge:
//
//	┌────────┐  fwd  ┌────────┐  fwd  ┌────────┐
//	│ radio0 │──────▶│  ddc0  │──────▶│ replay │
//	└────────┘       └────────┘       └───┬────┘
//	     ▲                                │
//	     └─────────────── back ───────────┘
//
// Forward edges feed the ordering kept in internal/dag and must stay acyclic.
// Back edges carry values and actions but never constrain the order.
//
// # Resolution
//
// A pass runs two sweeps over the forward-edge order, starting at the node
// that triggered it. The forward sweep copies edge properties across forward
// edges, the back sweep across back edges. At every visit a node resolves its
// dirty properties, hands its edge properties to its neighbours and cleans
// itself. The walk bounces between the ends of the order and stops once the
// graph is clean or the iteration bound is reached; anything still dirty at
// that point is a resolution error.
//
// # Lifecycle
//
//  1. **Build:** Connect blocks. The graph starts released.
//  2. **Commit:** The topology is checked and an initial pass drives every
//     block from its defaults into a consistent state.
//  3. **Run:** Property writes on member blocks trigger passes; actions
//     travel across edges.
//  4. **Release:** Writes only resolve locally until the next Commit.
//  5. **Shutdown:** Nothing resolves or travels any more.
//
// # Thread-Safety
//
// One mutex serializes topology edits and resolution passes. Action delivery
// is serialized separately, so handlers may write properties.
package graph
