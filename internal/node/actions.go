package node

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

// RegisterActionHandler installs fn for actions with the given key,
// replacing any earlier handler.
func (n *Node) RegisterActionHandler(key string, fn ActionHandler) {
	n.actionMu.Lock()
	defer n.actionMu.Unlock()
	n.handlers[key] = fn
}

// SetActionForwardingPolicy sets the policy for actions with key, or the
// default policy when key is empty.
func (n *Node) SetActionForwardingPolicy(policy ForwardingPolicy, key string) {
	n.actionMu.Lock()
	defer n.actionMu.Unlock()
	n.actionPolicies[key] = policy
}

func (n *Node) SetActionForwardingMap(m ForwardingMap) {
	n.actionMu.Lock()
	defer n.actionMu.Unlock()
	n.actionMap = m
}

// PostAction sends a out of port src. A USER source addresses the node
// itself. Without a host the action goes nowhere.
func (n *Node) PostAction(ctx context.Context, src property.SourceInfo, a *action.Info) error {
	h := n.Host()
	if h == nil {
		n.logger(ctx).Debug("Node is not part of a graph, dropping action.", "action", a.String(), "port", src.String())
		return nil
	}
	return h.EnqueueAction(ctx, n, src, a)
}

// ReceiveAction delivers a, which arrived on src. A registered handler takes
// precedence; otherwise USER actions stop here and everything else follows
// the action forwarding policy.
func (n *Node) ReceiveAction(ctx context.Context, src property.SourceInfo, a *action.Info) error {
	n.actionMu.Lock()
	h, hasHandler := n.handlers[a.Key]
	policy, ok := n.actionPolicies[a.Key]
	if !ok {
		policy = n.actionPolicies[""]
	}
	mapped, mapOK := n.actionMap[src]
	n.actionMu.Unlock()

	logger := n.logger(ctx)
	if hasHandler {
		if err := h(ctx, src, a); err != nil {
			return fmt.Errorf("%w: node %s handling %s on %s: %w", rfnocerr.ErrActionHandler, n.id, a, src, err)
		}
		return nil
	}

	if src.Type == property.User {
		logger.Debug("Dropping USER action.", "action", a.String())
		return nil
	}

	var dsts []property.SourceInfo
	switch policy {
	case Drop:
		logger.Debug("Dropping action.", "action", a.String())
	case OneToOne:
		if opposite := src.Inverted(); n.HasPort(opposite) {
			dsts = append(dsts, opposite)
		}
	case OneToFan:
		oppositeType := property.InvertEdge(src.Type)
		for i := 0; i < n.portCount(oppositeType); i++ {
			dsts = append(dsts, property.SourceInfo{Type: oppositeType, Instance: i})
		}
	case OneToAll, OneToAllIn, OneToAllOut:
		if policy != OneToAllOut {
			dsts = append(dsts, n.otherPorts(property.InputEdge, src)...)
		}
		if policy != OneToAllIn {
			dsts = append(dsts, n.otherPorts(property.OutputEdge, src)...)
		}
	case UseMap:
		if !mapOK {
			logger.Debug("Dropping action, no destinations in map.", "action", a.String(), "port", src.String())
		}
		for _, dst := range mapped {
			if !n.HasPort(dst) {
				return fmt.Errorf("%w: node %s: destination port %s in action map does not exist",
					rfnocerr.ErrConfiguration, n.id, dst)
			}
			dsts = append(dsts, dst)
		}
	}

	for _, dst := range dsts {
		logger.Debug("Forwarding action.", "action", a.String(), "from", src.String(), "to", dst.String())
		if err := n.PostAction(ctx, dst, a); err != nil {
			return err
		}
	}
	return nil
}
