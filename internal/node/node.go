// Package node implements the unit of graph composition: a block with ports,
// a table of properties, the resolvers that keep them consistent, and the
// action handlers and forwarding policies that route messages through it.
//
// A Node is usable on its own. Once connected into a graph it gets a Host,
// which turns property writes into graph-wide resolution passes and action
// posts into queued deliveries across edges.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/property"
)

// Host is implemented by whatever owns the node's topology.
type Host interface {
	// ResolveFrom runs write and then a resolution pass starting at n, with
	// both steps serialized against other passes.
	ResolveFrom(ctx context.Context, n *Node, write func() error) error
	// EnqueueAction delivers a to the recipient implied by n and src.
	EnqueueAction(ctx context.Context, n *Node, src property.SourceInfo, a *action.Info) error
}

// ResolverFunc computes a resolver's outputs from its inputs. It runs with
// the node's property lock held, so it must only touch properties through
// the *property.Property values it closed over.
type ResolverFunc func(ctx context.Context) error

// CleanFunc runs when a valid, dirty property is marked clean.
type CleanFunc func(ctx context.Context) error

// ActionHandler consumes an action arriving at src.
type ActionHandler func(ctx context.Context, src property.SourceInfo, a *action.Info) error

type resolver struct {
	inputs  []property.Prop
	outputs []property.Prop
	fn      ResolverFunc
}

// Node is the shared machinery embedded by every block.
type Node struct {
	id     string
	numIn  int
	numOut int

	mu          sync.Mutex
	props       []property.Prop
	clean       map[property.Prop]CleanFunc
	resolvers   []resolver
	alwaysDirty *property.Dirtifier

	// timeMu is separate from mu so clean callbacks can read command times.
	timeMu   sync.Mutex
	cmdTimes []*action.TimeSpec

	// policyMu nests inside mu.
	policyMu     sync.Mutex
	propPolicies map[string]ForwardingPolicy
	propMap      ForwardingMap

	actionMu       sync.Mutex
	handlers       map[string]ActionHandler
	actionPolicies map[string]ForwardingPolicy
	actionMap      ForwardingMap

	hostMu sync.RWMutex
	host   Host
}

// New creates a node with the given unique id and port counts.
func New(id string, numIn, numOut int) *Node {
	n := &Node{
		id:             id,
		numIn:          numIn,
		numOut:         numOut,
		clean:          make(map[property.Prop]CleanFunc),
		alwaysDirty:    property.NewDirtifier(),
		propPolicies:   map[string]ForwardingPolicy{"": OneToOne},
		handlers:       make(map[string]ActionHandler),
		actionPolicies: map[string]ForwardingPolicy{"": OneToOne},
	}
	n.props = append(n.props, n.alwaysDirty)
	return n
}

// Base returns n itself. Blocks embedding *Node inherit it, which lets the
// graph accept any block.
func (n *Node) Base() *Node { return n }

func (n *Node) ID() string          { return n.id }
func (n *Node) NumInputPorts() int  { return n.numIn }
func (n *Node) NumOutputPorts() int { return n.numOut }
func (n *Node) String() string      { return n.id }

// AlwaysDirty returns the marker to list as a resolver input when the
// resolver must run every time the node resolves.
func (n *Node) AlwaysDirty() property.Prop { return n.alwaysDirty }

// Attach installs the host. A nil host detaches the node, after which
// property writes only mark properties dirty and actions are dropped.
func (n *Node) Attach(h Host) {
	n.hostMu.Lock()
	defer n.hostMu.Unlock()
	n.host = h
}

// Host returns the current host or nil.
func (n *Node) Host() Host {
	n.hostMu.RLock()
	defer n.hostMu.RUnlock()
	return n.host
}

// HasPort reports whether src names an existing input or output port.
func (n *Node) HasPort(src property.SourceInfo) bool {
	switch src.Type {
	case property.InputEdge:
		return src.Instance >= 0 && src.Instance < n.numIn
	case property.OutputEdge:
		return src.Instance >= 0 && src.Instance < n.numOut
	default:
		return false
	}
}

// CheckTopology reports whether every connected port index is in range.
func (n *Node) CheckTopology(connectedIn, connectedOut []int) bool {
	for _, p := range connectedIn {
		if p < 0 || p >= n.numIn {
			return false
		}
	}
	for _, p := range connectedOut {
		if p < 0 || p >= n.numOut {
			return false
		}
	}
	return true
}

// SetCommandTime stamps subsequent timed commands on instance.
func (n *Node) SetCommandTime(t action.TimeSpec, instance int) {
	n.timeMu.Lock()
	defer n.timeMu.Unlock()
	for len(n.cmdTimes) <= instance {
		n.cmdTimes = append(n.cmdTimes, nil)
	}
	n.cmdTimes[instance] = &t
}

// CommandTime returns the command time for instance, or nil for "now".
func (n *Node) CommandTime(instance int) *action.TimeSpec {
	n.timeMu.Lock()
	defer n.timeMu.Unlock()
	if instance < 0 || instance >= len(n.cmdTimes) || n.cmdTimes[instance] == nil {
		return nil
	}
	t := *n.cmdTimes[instance]
	return &t
}

func (n *Node) ClearCommandTime(instance int) {
	n.timeMu.Lock()
	defer n.timeMu.Unlock()
	if instance >= 0 && instance < len(n.cmdTimes) {
		n.cmdTimes[instance] = nil
	}
}

func (n *Node) logger(ctx context.Context) *slog.Logger {
	return ctxlog.FromContext(ctx).With("node", n.id)
}

func (n *Node) describe(p property.Prop) string {
	return fmt.Sprintf("%s:`%s'@%s", n.id, p.ID(), p.Source())
}
