package node

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/rfnocgo/internal/property"
)

// InitProps runs every resolver once in registration order and then cleans
// all properties. A property written earlier in the sweep is locked for the
// rest of it, so inconsistent defaults surface as a resolution error.
func (n *Node) InitProps(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	written := make(map[property.Prop]bool)
	for _, r := range n.resolvers {
		if err := n.runResolverLocked(ctx, r, written); err != nil {
			return fmt.Errorf("node %s: initializing properties, most likely inconsistent defaults: %w", n.id, err)
		}
	}
	return n.cleanLocked(ctx)
}

// ResolveProps runs the resolvers fed by dirty properties until no new
// output becomes dirty. It does not clean.
func (n *Node) ResolveProps(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resolveLocked(ctx)
}

// CleanProps runs clean callbacks, clears dirty flags and revokes write
// access. Every property is cleaned even if a callback fails; the first
// callback error is returned.
func (n *Node) CleanProps(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cleanLocked(ctx)
}

// Resolve is ResolveProps followed by CleanProps, for standalone nodes.
func (n *Node) Resolve(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.resolveLocked(ctx); err != nil {
		return err
	}
	return n.cleanLocked(ctx)
}

func (n *Node) resolveLocked(ctx context.Context) error {
	var queue []property.Prop
	for _, p := range n.props {
		if p.IsDirty() {
			queue = append(queue, p)
		}
	}
	n.logger(ctx).Debug("Locally resolving dirty properties plus dependencies.", "dirty", len(queue)-1)

	processed := make(map[property.Prop]bool)
	written := make(map[property.Prop]bool)
	for i := 0; i < len(queue); i++ {
		current := queue[i]
		if processed[current] {
			continue
		}
		for _, r := range n.resolvers {
			if !slices.Contains(r.inputs, current) {
				continue
			}
			if err := n.runResolverLocked(ctx, r, written); err != nil {
				return fmt.Errorf("node %s: resolving %s: %w", n.id, n.describe(current), err)
			}
			for _, out := range r.outputs {
				if out.IsDirty() && !processed[out] {
					queue = append(queue, out)
				}
			}
		}
		processed[current] = true
	}
	return nil
}

// runResolverLocked grants write access to r's outputs for the duration of
// the call: RW for outputs not yet written in this pass, RWLOCKED for the
// others.
func (n *Node) runResolverLocked(ctx context.Context, r resolver, written map[property.Prop]bool) error {
	prev := make([]property.Access, len(r.outputs))
	for i, out := range r.outputs {
		prev[i] = out.Access()
		if written[out] {
			out.SetAccess(property.ReadWriteLocked)
		} else {
			out.SetAccess(property.ReadWrite)
		}
	}
	defer func() {
		for i, out := range r.outputs {
			out.SetAccess(prev[i])
			written[out] = true
		}
	}()
	return r.fn(ctx)
}

func (n *Node) cleanLocked(ctx context.Context) error {
	var errs []error
	for _, p := range n.props {
		if cb, ok := n.clean[p]; ok && p.IsValid() && p.IsDirty() {
			if err := cb(ctx); err != nil {
				errs = append(errs, fmt.Errorf("node %s: applying %s: %w", n.id, n.describe(p), err))
			}
		}
		p.MarkClean()
		p.SetAccess(property.ReadOnly)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
