package node

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

// ForwardingPolicy decides where a node passes on an edge property or an
// action it has no explicit handling for.
type ForwardingPolicy int

const (
	// Drop absorbs the property or action.
	Drop ForwardingPolicy = iota
	// OneToOne forwards input port i to output port i and vice versa.
	OneToOne
	// OneToFan forwards to every port on the opposite side.
	OneToFan
	// OneToAll forwards to every other port on both sides.
	OneToAll
	// OneToAllIn forwards to every other input port.
	OneToAllIn
	// OneToAllOut forwards to every other output port.
	OneToAllOut
	// UseMap forwards according to the node's forwarding map.
	UseMap
)

func (p ForwardingPolicy) String() string {
	switch p {
	case Drop:
		return "DROP"
	case OneToOne:
		return "ONE_TO_ONE"
	case OneToFan:
		return "ONE_TO_FAN"
	case OneToAll:
		return "ONE_TO_ALL"
	case OneToAllIn:
		return "ONE_TO_ALL_IN"
	case OneToAllOut:
		return "ONE_TO_ALL_OUT"
	case UseMap:
		return "USE_MAP"
	default:
		return fmt.Sprintf("POLICY(%d)", int(p))
	}
}

// ForwardingMap routes a source port to a list of destination ports. Ports
// missing from the map drop what arrives on them.
type ForwardingMap map[property.SourceInfo][]property.SourceInfo

// SetPropForwardingPolicy sets the policy for edge properties named id, or
// the default policy when id is empty.
func (n *Node) SetPropForwardingPolicy(policy ForwardingPolicy, id string) {
	n.policyMu.Lock()
	defer n.policyMu.Unlock()
	n.propPolicies[id] = policy
}

// SetPropForwardingMap replaces the property forwarding map. It only takes
// the policy lock, so clean callbacks may call it. Properties injected
// earlier keep the routing they were created with.
func (n *Node) SetPropForwardingMap(m ForwardingMap) {
	n.policyMu.Lock()
	defer n.policyMu.Unlock()
	n.propMap = m
}

func (n *Node) propPolicy(id string) ForwardingPolicy {
	n.policyMu.Lock()
	defer n.policyMu.Unlock()
	if p, ok := n.propPolicies[id]; ok {
		return p
	}
	return n.propPolicies[""]
}

func (n *Node) propDestinations(src property.SourceInfo) ([]property.SourceInfo, bool) {
	n.policyMu.Lock()
	defer n.policyMu.Unlock()
	dsts, ok := n.propMap[src]
	return dsts, ok
}

// ForwardEdgeProperty receives incoming, an edge property of a neighbour,
// arriving on local port. The value lands in the local property of the
// opposite edge type at port, which is created on first contact according
// to the property forwarding policy.
func (n *Node) ForwardEdgeProperty(ctx context.Context, incoming property.Prop, port int) error {
	if !incoming.Source().Type.IsEdge() {
		return fmt.Errorf("%w: %s is not an edge property", rfnocerr.ErrConfiguration, incoming.ID())
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !incoming.IsValid() {
		n.logger(ctx).Debug("Skipped empty edge property.", "property", incoming.ID(), "source", incoming.Source().String())
		return nil
	}

	src := property.SourceInfo{Type: property.InvertEdge(incoming.Source().Type), Instance: port}
	local := n.findLocked(src, incoming.ID())
	if local == nil {
		n.logger(ctx).Debug("Received unknown incoming edge property.", "property", incoming.ID(), "port", src.String())
		var err error
		if local, err = n.injectEdgePropertyLocked(ctx, incoming, src); err != nil {
			return err
		}
	}
	return incoming.Forward(local)
}

// injectEdgePropertyLocked creates a copy of blueprint at src, plus whatever
// further properties and forwarding resolvers the policy calls for.
func (n *Node) injectEdgePropertyLocked(ctx context.Context, blueprint property.Prop, src property.SourceInfo) (property.Prop, error) {
	if existing := n.findLocked(src, blueprint.ID()); existing != nil {
		return existing, nil
	}

	created := blueprint.Clone(src)
	n.props = append(n.props, created)

	policy := n.propPolicy(created.ID())
	switch policy {
	case OneToOne:
		opposite := src.Inverted()
		if n.HasPort(opposite) {
			next, err := n.injectEdgePropertyLocked(ctx, created, opposite)
			if err != nil {
				return nil, err
			}
			n.addForwarderLocked(created, next)
		}

	case OneToFan:
		oppositeType := property.InvertEdge(src.Type)
		for i := 0; i < n.portCount(oppositeType); i++ {
			next, err := n.injectEdgePropertyLocked(ctx, created, property.SourceInfo{Type: oppositeType, Instance: i})
			if err != nil {
				return nil, err
			}
			n.addForwarderLocked(created, next)
		}

	case OneToAll, OneToAllIn, OneToAllOut:
		var targets []property.SourceInfo
		if policy != OneToAllOut {
			targets = append(targets, n.otherPorts(property.InputEdge, src)...)
		}
		if policy != OneToAllIn {
			targets = append(targets, n.otherPorts(property.OutputEdge, src)...)
		}
		for _, t := range targets {
			next, err := n.injectEdgePropertyLocked(ctx, created, t)
			if err != nil {
				return nil, err
			}
			n.addForwarderLocked(created, next)
		}

	case UseMap:
		dsts, ok := n.propDestinations(src)
		if !ok {
			n.logger(ctx).Debug("Dropping incoming property, no destinations in map.", "property", created.ID(), "port", src.String())
			break
		}
		for _, dst := range dsts {
			if !n.HasPort(dst) {
				return nil, fmt.Errorf("%w: node %s: destination port %s in property map does not exist",
					rfnocerr.ErrConfiguration, n.id, dst)
			}
			next, err := n.injectEdgePropertyLocked(ctx, created, dst)
			if err != nil {
				return nil, err
			}
			n.addForwarderLocked(created, next)
		}

	case Drop:
		n.logger(ctx).Debug("Dropping incoming property.", "property", created.ID(), "port", src.String())
	}

	return created, nil
}

func (n *Node) addForwarderLocked(from, to property.Prop) {
	n.resolvers = append(n.resolvers, resolver{
		inputs:  []property.Prop{from},
		outputs: []property.Prop{to},
		fn: func(context.Context) error {
			return from.Forward(to)
		},
	})
}

func (n *Node) portCount(t property.SourceType) int {
	if t == property.InputEdge {
		return n.numIn
	}
	return n.numOut
}

// otherPorts lists all ports of type t except self.
func (n *Node) otherPorts(t property.SourceType, self property.SourceInfo) []property.SourceInfo {
	var out []property.SourceInfo
	for i := 0; i < n.portCount(t); i++ {
		p := property.SourceInfo{Type: t, Instance: i}
		if p != self {
			out = append(out, p)
		}
	}
	return out
}
