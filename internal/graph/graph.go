package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/dag"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

const (
	// DefaultMaxIterations bounds how often a sweep may pass its initial
	// node before giving up.
	DefaultMaxIterations = 2
	// MaxActionDeliveries bounds the deliveries made for one external post.
	MaxActionDeliveries = 200
)

type edgeRecord struct {
	src  *node.Node
	dst  *node.Node
	info Edge
}

// Manager is the reference Graph. The node slice doubles as the arena whose
// indices key the dirty-node bitmaps.
type Manager struct {
	mu            sync.Mutex
	nodes         []*node.Node
	edges         []edgeRecord
	order         *dag.Graph
	releaseCount  atomic.Int64
	shutdown      atomic.Bool
	maxIterations int

	actionMu sync.Mutex
}

var _ Graph = (*Manager)(nil)
var _ node.Host = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithMaxIterations overrides DefaultMaxIterations. Values below one are
// ignored.
func WithMaxIterations(n int) Option {
	return func(m *Manager) {
		if n >= 1 {
			m.maxIterations = n
		}
	}
}

// New creates an empty, released graph.
func New(opts ...Option) *Manager {
	m := &Manager{
		order:         dag.New(),
		maxIterations: DefaultMaxIterations,
	}
	m.releaseCount.Store(1)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func logger(ctx context.Context) *slog.Logger {
	return ctxlog.FromContext(ctx).With("component", "graph")
}

// Connect adds e between src and dst. Repeating an identical connect is a
// no-op. The blocks get this graph as their host even when the edge is
// rejected.
func (m *Manager) Connect(ctx context.Context, src, dst Block, e Edge) error {
	srcNode, dstNode := src.Base(), dst.Base()
	e.SrcBlockID, e.DstBlockID = srcNode.ID(), dstNode.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	log := logger(ctx)
	log.Debug("Connecting blocks.", "edge", e.String())

	if err := m.addNodeLocked(srcNode); err != nil {
		return err
	}
	if err := m.addNodeLocked(dstNode); err != nil {
		return err
	}
	srcNode.Attach(m)
	dstNode.Attach(m)

	for _, rec := range m.edges {
		if rec.src != srcNode {
			continue
		}
		if rec.info == e {
			log.Info("Ignoring repeated call to connect.", "edge", e.String())
			return nil
		}
		if rec.info.SrcPort == e.SrcPort {
			if rec.dst == dstNode && rec.info.DstPort == e.DstPort {
				return fmt.Errorf("%w: attempt to modify properties of edge %s", rfnocerr.ErrConfiguration, rec.info)
			}
			return fmt.Errorf("%w: attempting to reconnect output port %s:%d", rfnocerr.ErrConfiguration, e.SrcBlockID, e.SrcPort)
		}
	}
	for _, rec := range m.edges {
		if rec.dst == dstNode && rec.info.DstPort == e.DstPort {
			return fmt.Errorf("%w: attempting to reconnect input port %s:%d", rfnocerr.ErrConfiguration, e.DstBlockID, e.DstPort)
		}
	}

	m.edges = append(m.edges, edgeRecord{src: srcNode, dst: dstNode, info: e})
	if !e.IsForwardEdge {
		return nil
	}

	err := m.order.AddEdge(srcNode.ID(), dstNode.ID())
	if err == nil {
		if _, err = m.order.TopologicalSort(); err != nil {
			_ = m.order.RemoveEdge(srcNode.ID(), dstNode.ID())
		}
	}
	if err != nil {
		m.edges = m.edges[:len(m.edges)-1]
		log.Error("Forward edge would make the graph unresolvable.", "edge", e.String(), "error", err)
		return fmt.Errorf("%w: adding forward edge %s leads to an unresolvable graph, declare it a back edge: %w",
			rfnocerr.ErrConfiguration, e, err)
	}
	return nil
}

// Disconnect removes the edge equal to e. A block left without edges is
// removed and becomes standalone again.
func (m *Manager) Disconnect(ctx context.Context, src, dst Block, e Edge) error {
	srcNode, dstNode := src.Base(), dst.Base()
	e.SrcBlockID, e.DstBlockID = srcNode.ID(), dstNode.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexLocked(srcNode) < 0 && m.indexLocked(dstNode) < 0 {
		return nil
	}
	log := logger(ctx)
	log.Debug("Disconnecting blocks.", "edge", e.String())

	kept := make([]edgeRecord, 0, len(m.edges))
	for _, rec := range m.edges {
		if rec.src == srcNode && rec.dst == dstNode && rec.info == e {
			if e.IsForwardEdge {
				if err := m.order.RemoveEdge(srcNode.ID(), dstNode.ID()); err != nil {
					return fmt.Errorf("disconnecting %s: %w", e, err)
				}
			}
			continue
		}
		kept = append(kept, rec)
	}
	m.edges = kept

	for _, n := range []*node.Node{srcNode, dstNode} {
		if m.indexLocked(n) >= 0 && m.degreeLocked(n) == 0 {
			log.Debug("Removing block without edges.", "block", n.ID())
			m.removeNodeLocked(n)
		}
	}
	return nil
}

// Remove takes a block and all its edges out of the graph.
func (m *Manager) Remove(b Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeNodeLocked(b.Base())
}

// Commit decrements the release counter. When it reaches zero the topology
// is validated and an initial pass runs from the first inserted block.
func (m *Manager) Commit(ctx context.Context) error {
	return m.lockedPass(ctx, func(ctx context.Context) error {
		if m.releaseCount.Load() > 0 {
			m.releaseCount.Add(-1)
		}
		if m.releaseCount.Load() > 0 {
			return nil
		}
		if err := m.checkTopologyLocked(ctx); err != nil {
			return err
		}
		if len(m.nodes) == 0 {
			return nil
		}
		logger(ctx).Info("✅ Committing graph.", "blocks", len(m.nodes), "edges", len(m.edges))
		return m.resolveAllLocked(ctx, initContext, m.nodes[0])
	})
}

// Release increments the release counter. While released, property writes
// only resolve the written block and actions are dropped.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.shutdown.Load() {
		m.releaseCount.Add(1)
	}
}

// Shutdown stops resolution and action delivery permanently.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown.Store(true)
	m.releaseCount.Store(math.MaxInt64)
}

// IsCommitted reports whether passes run graph-wide.
func (m *Manager) IsCommitted() bool {
	return m.releaseCount.Load() == 0 && !m.shutdown.Load()
}

func (m *Manager) EnumerateEdges() []Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Edge, 0, len(m.edges))
	for _, rec := range m.edges {
		if !slices.Contains(out, rec.info) {
			out = append(out, rec.info)
		}
	}
	return out
}

func (m *Manager) Nodes() []*node.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.nodes)
}

func (m *Manager) Node(id string) (*node.Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.ID() == id {
			return n, true
		}
	}
	return nil, false
}

// Neighbour returns the node across port of b, with the connecting edge.
func (m *Manager) Neighbour(b Block, port property.SourceInfo) (*node.Node, Edge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.neighbourLocked(b.Base(), port)
}

func (m *Manager) PropertySnapshot() map[string][]node.PropertyValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]node.PropertyValue, len(m.nodes))
	for _, n := range m.nodes {
		out[n.ID()] = n.Snapshot()
	}
	return out
}

func (m *Manager) addNodeLocked(n *node.Node) error {
	if m.indexLocked(n) >= 0 {
		return nil
	}
	for _, existing := range m.nodes {
		if existing.ID() == n.ID() {
			return fmt.Errorf("%w: another block with id %s is already in the graph", rfnocerr.ErrConfiguration, n.ID())
		}
	}
	m.nodes = append(m.nodes, n)
	m.order.AddNode(n.ID())
	return nil
}

func (m *Manager) removeNodeLocked(n *node.Node) {
	idx := m.indexLocked(n)
	if idx < 0 {
		return
	}
	m.edges = slices.DeleteFunc(m.edges, func(rec edgeRecord) bool { return rec.src == n || rec.dst == n })
	m.order.RemoveNode(n.ID())
	m.nodes = slices.Delete(m.nodes, idx, idx+1)
	n.Attach(nil)
}

func (m *Manager) indexLocked(n *node.Node) int {
	return slices.Index(m.nodes, n)
}

func (m *Manager) degreeLocked(n *node.Node) int {
	d := 0
	for _, rec := range m.edges {
		if rec.src == n {
			d++
		}
		if rec.dst == n {
			d++
		}
	}
	return d
}

// neighbourLocked finds the edge attached to port of n. Input ports look at
// edges arriving at n, output ports at edges leaving it.
func (m *Manager) neighbourLocked(n *node.Node, port property.SourceInfo) (*node.Node, Edge, bool) {
	for _, rec := range m.edges {
		switch port.Type {
		case property.InputEdge:
			if rec.dst == n && rec.info.DstPort == port.Instance {
				return rec.src, rec.info, true
			}
		case property.OutputEdge:
			if rec.src == n && rec.info.SrcPort == port.Instance {
				return rec.dst, rec.info, true
			}
		}
	}
	return nil, Edge{}, false
}

func (m *Manager) checkTopologyLocked(ctx context.Context) error {
	ok := true
	for _, n := range m.nodes {
		var in, out []int
		for _, rec := range m.edges {
			if rec.dst == n {
				in = append(in, rec.info.DstPort)
			}
			if rec.src == n {
				out = append(out, rec.info.SrcPort)
			}
		}
		if !n.CheckTopology(in, out) {
			logger(ctx).Error("Block uses invalid inputs or outputs.",
				"block", n.ID(),
				"requested_inputs", in, "valid_inputs", n.NumInputPorts(),
				"requested_outputs", out, "valid_outputs", n.NumOutputPorts())
			ok = false
		}
	}
	if !ok {
		return fmt.Errorf("%w: graph topology is not valid", rfnocerr.ErrConfiguration)
	}
	return nil
}

// sortedLocked returns the members in forward-edge order.
func (m *Manager) sortedLocked() ([]*node.Node, error) {
	ids, err := m.order.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve graph: %w", rfnocerr.ErrConfiguration, err)
	}
	byID := make(map[string]*node.Node, len(m.nodes))
	for _, n := range m.nodes {
		byID[n.ID()] = n
	}
	out := make([]*node.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}
