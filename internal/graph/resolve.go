package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

type resolveContext int

const (
	// initContext walks until the iteration bound or a clean graph, visiting
	// every node at least once.
	initContext resolveContext = iota
	// nodePropContext stops as soon as no node is dirty.
	nodePropContext
)

func (c resolveContext) String() string {
	if c == initContext {
		return "init"
	}
	return "node_prop"
}

// ResolveFrom implements node.Host. The write and the pass that follows run
// under the graph lock.
func (m *Manager) ResolveFrom(ctx context.Context, n *node.Node, write func() error) error {
	return m.lockedPass(ctx, func(ctx context.Context) error {
		if err := write(); err != nil {
			return err
		}
		if m.indexLocked(n) < 0 {
			return n.Resolve(ctx)
		}
		return m.resolveAllLocked(ctx, nodePropContext, n)
	})
}

// Resolve runs a pass from b without writing anything first. Resolvers
// hanging off the always-dirty marker refresh their outputs this way.
func (m *Manager) Resolve(ctx context.Context, b Block) error {
	return m.ResolveFrom(ctx, b.Base(), func() error { return nil })
}

func (m *Manager) resolveAllLocked(ctx context.Context, rctx resolveContext, initial *node.Node) error {
	if len(m.nodes) == 0 || m.shutdown.Load() {
		return nil
	}
	log := logger(ctx)
	if m.releaseCount.Load() > 0 {
		log.Debug("Graph is not committed, resolving a single node.", "block", initial.ID())
		if err := initial.ResolveProps(ctx); err != nil {
			return err
		}
		return initial.CleanProps(ctx)
	}

	log.Debug("Running forward edge property propagation.", "context", rctx.String(), "initial", initial.ID())
	if err := m.sweepLocked(ctx, rctx, initial, true); err != nil {
		return err
	}
	log.Debug("Running back edge property propagation.", "context", rctx.String(), "initial", initial.ID())
	if err := m.sweepLocked(ctx, rctx, initial, false); err != nil {
		return err
	}
	return m.checkBackEdgesLocked(ctx)
}

// sweepLocked walks the forward-edge order from initial to the end, back to
// the front and forward again, resolving each visited node and forwarding
// its edge properties across edges of the requested direction. Each time the
// walk reaches initial going forward counts as one iteration.
func (m *Manager) sweepLocked(ctx context.Context, rctx resolveContext, initial *node.Node, forward bool) error {
	log := logger(ctx)

	if dirty := m.dirtyNodesLocked(); dirty.GetCardinality() > 1 {
		log.Debug("Found several dirty nodes in initial search, propagation may resolve this.",
			"dirty", m.describeNodes(dirty))
	}

	order, err := m.sortedLocked()
	if err != nil {
		return err
	}
	idx := -1
	for i, n := range order {
		if n == initial {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: cannot find block %s in graph", rfnocerr.ErrConfiguration, initial.ID())
	}

	forwardDir := true
	iterations := 0
	for {
		current := order[idx]
		log.Debug("Resolving next node.", "block", current.ID())

		if err := current.ResolveProps(ctx); err != nil {
			log.Error("Local resolution failed.", "block", current.ID(), "error", err)
			return err
		}
		if err := m.forwardEdgePropsLocked(ctx, current, forward); err != nil {
			return err
		}
		if err := current.CleanProps(ctx); err != nil {
			return err
		}

		if rctx == nodePropContext && m.dirtyNodesLocked().IsEmpty() {
			log.Debug("Terminating graph resolution early.", "iteration", iterations)
			break
		}

		if forwardDir {
			idx++
			if idx == len(order) {
				forwardDir = false
				idx--
			}
		}
		if !forwardDir {
			if len(order) > 1 {
				idx--
				if idx == 0 {
					forwardDir = true
				}
			} else {
				forwardDir = true
			}
		}
		if forwardDir && order[idx] == initial {
			iterations++
			if iterations == m.maxIterations || m.dirtyNodesLocked().IsEmpty() {
				log.Debug("Terminating graph resolution.", "iteration", iterations)
				break
			}
		}
	}

	remaining := m.dirtyNodesLocked()
	if remaining.IsEmpty() {
		return nil
	}
	var unresolved []string
	it := remaining.Iterator()
	for it.HasNext() {
		n := m.nodes[it.Next()]
		for _, p := range n.DirtyProps() {
			unresolved = append(unresolved, fmt.Sprintf("%s[%s %s]", n.ID(), p.Source(), p.ID()))
		}
	}
	log.Error("Properties could not be resolved.", "dirty", unresolved, "iterations", iterations)
	return fmt.Errorf("%w: could not resolve properties after %d iterations: %s",
		rfnocerr.ErrResolution, iterations, strings.Join(unresolved, ", "))
}

// forwardEdgePropsLocked hands each edge property of origin to the block on
// the other side of its port. Only edges matching the sweep direction with
// propagation enabled carry values.
func (m *Manager) forwardEdgePropsLocked(ctx context.Context, origin *node.Node, forward bool) error {
	props := origin.EdgeProps()
	for _, p := range props {
		neighbour, e, ok := m.neighbourLocked(origin, p.Source())
		if !ok || !e.PropagationActive || e.IsForwardEdge != forward {
			continue
		}
		port := e.DstPort
		if p.Source().Type == property.InputEdge {
			port = e.SrcPort
		}
		if err := neighbour.ForwardEdgeProperty(ctx, p, port); err != nil {
			return fmt.Errorf("forwarding %s from %s along %s: %w", p.ID(), origin.ID(), e, err)
		}
	}
	return nil
}

// dirtyNodesLocked returns the arena indices of nodes with dirty
// non-framework properties.
func (m *Manager) dirtyNodesLocked() *roaring.Bitmap {
	bm := roaring.New()
	for i, n := range m.nodes {
		if n.IsDirty() {
			bm.Add(uint32(i))
		}
	}
	return bm
}

func (m *Manager) describeNodes(bm *roaring.Bitmap) []string {
	ids := make([]string, 0, bm.GetCardinality())
	for _, i := range bm.ToArray() {
		ids = append(ids, m.nodes[i].ID())
	}
	return ids
}

// checkBackEdgesLocked verifies that both ends of every propagating back
// edge agree on the edge properties they share.
func (m *Manager) checkBackEdgesLocked(ctx context.Context) error {
	var mismatched []string
	for _, rec := range m.edges {
		if rec.info.IsForwardEdge || !rec.info.PropagationActive {
			continue
		}
		srcPort := property.OutputEdgeSource(rec.info.SrcPort)
		dstPort := property.InputEdgeSource(rec.info.DstPort)
		dstProps := make(map[string]property.Prop)
		for _, p := range rec.dst.Props(func(p property.Prop) bool { return p.Source() == dstPort }) {
			dstProps[p.ID()] = p
		}
		for _, p := range rec.src.Props(func(p property.Prop) bool { return p.Source() == srcPort }) {
			other, ok := dstProps[p.ID()]
			if !ok {
				logger(ctx).Debug("Back edge carries a property only the source has.", "edge", rec.info.String(), "property", p.ID())
				continue
			}
			if !p.Equal(other) {
				mismatched = append(mismatched, fmt.Sprintf("%s on %s (%s != %s)", p.ID(), rec.info, p, other))
			}
		}
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("%w: edge properties inconsistent across back edges: %s",
			rfnocerr.ErrResolution, strings.Join(mismatched, ", "))
	}
	return nil
}
