package graph

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

type queuedAction struct {
	src    *node.Node
	port   property.SourceInfo
	action *action.Info
}

// delivery is the queue of one external post. Posts made by handlers while
// it runs find it in their context and are appended to it.
type delivery struct {
	queue []queuedAction
	done  bool
}

type deliveryKey struct{}

// pendingPosts collects actions posted by resolvers and clean callbacks while
// a pass holds the graph lock. They are delivered once the lock is released.
type pendingPosts struct {
	queue  []queuedAction
	closed bool
}

type passKey struct{}

// lockedPass runs fn under the graph lock, then delivers what fn's callbacks
// posted. Posts are dropped when fn fails.
func (m *Manager) lockedPass(ctx context.Context, fn func(ctx context.Context) error) error {
	p := &pendingPosts{}
	err := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		defer func() { p.closed = true }()
		return fn(context.WithValue(ctx, passKey{}, p))
	}()
	if err != nil {
		return err
	}
	for _, q := range p.queue {
		if err := m.EnqueueAction(ctx, q.src, q.port, q.action); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueAction implements node.Host. The first post delivers; posts made
// during that delivery are queued behind it and delivered in order. Posts
// made while a pass holds the graph lock wait for the pass to finish.
func (m *Manager) EnqueueAction(ctx context.Context, n *node.Node, src property.SourceInfo, a *action.Info) error {
	if p, ok := ctx.Value(passKey{}).(*pendingPosts); ok && !p.closed {
		p.queue = append(p.queue, queuedAction{src: n, port: src, action: a})
		return nil
	}

	shutdown, released := m.shutdown.Load(), m.releaseCount.Load() > 0
	log := logger(ctx)
	if shutdown {
		return nil
	}
	if released {
		log.Warn("Action propagation is not enabled, graph is not committed.", "action", a.String())
		return nil
	}

	if d, ok := ctx.Value(deliveryKey{}).(*delivery); ok && !d.done {
		log.Debug("Action handling ongoing, deferring delivery.", "action", a.String())
		d.queue = append(d.queue, queuedAction{src: n, port: src, action: a})
		return nil
	}

	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	d := &delivery{queue: []queuedAction{{src: n, port: src, action: a}}}
	defer func() { d.done = true }()
	ctx = context.WithValue(ctx, deliveryKey{}, d)

	for count := 0; len(d.queue) > 0; count++ {
		if count == MaxActionDeliveries {
			return fmt.Errorf("%w: terminating action handling, reached the limit of %d deliveries",
				rfnocerr.ErrConfiguration, MaxActionDeliveries)
		}
		next := d.queue[0]
		d.queue = d.queue[1:]

		recipient, port, ok := m.recipient(next)
		if !ok {
			log.Warn("Cannot forward action, no neighbour found.",
				"action", next.action.String(), "block", next.src.ID(), "port", next.port.String())
			continue
		}
		log.Debug("Delivering action.", "action", next.action.String(), "to", recipient.ID(), "port", port.String())
		if err := recipient.ReceiveAction(ctx, port, next.action); err != nil {
			return err
		}
	}
	log.Debug("Delivered all actions.")
	return nil
}

// recipient resolves where a queued action goes. USER actions stay on their
// node; edge actions land on the inverted port of the neighbour.
func (m *Manager) recipient(q queuedAction) (*node.Node, property.SourceInfo, bool) {
	if q.port.Type == property.User {
		return q.src, q.port, true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	neighbour, e, ok := m.neighbourLocked(q.src, q.port)
	if !ok {
		return nil, property.SourceInfo{}, false
	}
	port := property.SourceInfo{Type: property.InvertEdge(q.port.Type), Instance: e.DstPort}
	if q.port.Type == property.InputEdge {
		port.Instance = e.SrcPort
	}
	return neighbour, port, true
}

// PostAction is a convenience for posting on behalf of b.
func (m *Manager) PostAction(ctx context.Context, b Block, src property.SourceInfo, a *action.Info) error {
	return m.EnqueueAction(ctx, b.Base(), src, a)
}
