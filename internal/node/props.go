package node

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

// RegisterProperty adds p to the property table. An optional clean callback
// runs whenever p is cleaned while valid and dirty. Registering the same id
// at the same source twice is a programming error and panics.
func (n *Node) RegisterProperty(p property.Prop, clean ...CleanFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.findLocked(p.Source(), p.ID()) != nil {
		panic(fmt.Sprintf("node %s: attempting to double-register property %s", n.id, n.describe(p)))
	}
	n.props = append(n.props, p)
	if len(clean) > 0 && clean[0] != nil {
		n.clean[p] = clean[0]
	}
	p.SetAccess(property.ReadWrite)
}

// AddPropertyResolver registers fn as the resolver reading inputs and
// writing outputs. Every property must already be registered.
func (n *Node) AddPropertyResolver(inputs, outputs []property.Prop, fn ResolverFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, p := range inputs {
		if !n.isRegisteredLocked(p) {
			panic(fmt.Sprintf("node %s: cannot add resolver, input %s is not registered", n.id, n.describe(p)))
		}
	}
	for _, p := range outputs {
		if !n.isRegisteredLocked(p) {
			panic(fmt.Sprintf("node %s: cannot add resolver, output %s is not registered", n.id, n.describe(p)))
		}
	}
	n.resolvers = append(n.resolvers, resolver{inputs: inputs, outputs: outputs, fn: fn})
}

func (n *Node) isRegisteredLocked(p property.Prop) bool {
	if p == property.Prop(n.alwaysDirty) {
		return true
	}
	return n.findLocked(p.Source(), p.ID()) == p
}

func (n *Node) findLocked(src property.SourceInfo, id string) property.Prop {
	for _, p := range n.props {
		if p.ID() == id && p.Source() == src {
			return p
		}
	}
	return nil
}

func (n *Node) lookupLocked(src property.SourceInfo, id string) (property.Prop, error) {
	if src.Type.IsEdge() && !n.HasPort(src) {
		return nil, fmt.Errorf("%w: node %s has no port %s", rfnocerr.ErrUnknownPort, n.id, src)
	}
	p := n.findLocked(src, id)
	if p == nil {
		return nil, fmt.Errorf("%w: node %s has no property `%s'@%s", rfnocerr.ErrUnknownProperty, n.id, id, src)
	}
	return p, nil
}

// Lookup returns the typed property registered as id at src.
func Lookup[T any](n *Node, id string, src property.SourceInfo) (*property.Property[T], error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return lookupTyped[T](n, id, src)
}

func lookupTyped[T any](n *Node, id string, src property.SourceInfo) (*property.Property[T], error) {
	p, err := n.lookupLocked(src, id)
	if err != nil {
		return nil, err
	}
	typed, ok := p.(*property.Property[T])
	if !ok {
		var want T
		return nil, fmt.Errorf("%w: property %s holds %T, not %T", rfnocerr.ErrConfiguration, n.describe(p), p.Value(), want)
	}
	return typed, nil
}

// GetProperty returns the value of the user property id on instance without
// triggering resolution.
func GetProperty[T any](n *Node, id string, instance int) (T, error) {
	return GetPropertyAt[T](n, id, property.UserSource(instance))
}

// GetPropertyAt reads a property at an arbitrary source, edge properties
// included.
func GetPropertyAt[T any](n *Node, id string, src property.SourceInfo) (T, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := lookupTyped[T](n, id, src)
	if err != nil {
		var zero T
		return zero, err
	}
	return p.Get(), nil
}

// GetPropertyAny is the untyped form of GetProperty.
func (n *Node) GetPropertyAny(id string, instance int) (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, err := n.lookupLocked(property.UserSource(instance), id)
	if err != nil {
		return nil, err
	}
	return p.Value(), nil
}

// SetProperty writes the user property id on instance. On a node inside a
// graph the write is followed by a resolution pass. A standalone node only
// records the dirty value and the caller runs Resolve.
func SetProperty[T any](ctx context.Context, n *Node, id string, v T, instance int) error {
	return SetPropertyAt(ctx, n, id, v, property.UserSource(instance))
}

// SetPropertyAt writes a property at an arbitrary source. Test harnesses
// and terminator blocks use it to prime edge properties.
func SetPropertyAt[T any](ctx context.Context, n *Node, id string, v T, src property.SourceInfo) error {
	return n.writeUser(ctx, func() error {
		p, err := lookupTyped[T](n, id, src)
		if err != nil {
			return err
		}
		return withAccess(p, property.ReadWrite, func() error { return p.Set(v) })
	})
}

// SetPropertyAny writes v after converting it to the property's payload type.
func (n *Node) SetPropertyAny(ctx context.Context, id string, v any, instance int) error {
	return n.writeUser(ctx, func() error {
		p, err := n.lookupLocked(property.UserSource(instance), id)
		if err != nil {
			return err
		}
		return withAccess(p, property.ReadWrite, func() error { return p.SetAny(v) })
	})
}

// SetProperties applies a "key=value,key:instance=value" list of user
// properties and resolves once. Unknown keys are logged and skipped.
func (n *Node) SetProperties(ctx context.Context, assignments string, instance int) error {
	pairs, err := parsePropertyList(assignments, instance)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.id, err)
	}
	logger := n.logger(ctx)
	return n.writeUser(ctx, func() error {
		for _, kv := range pairs {
			p := n.findLocked(property.UserSource(kv.instance), kv.id)
			if p == nil {
				logger.Warn("Cannot set property, no such property.", "property", kv.id, "instance", kv.instance)
				continue
			}
			if err := withAccess(p, property.ReadWrite, func() error { return p.SetAny(kv.value) }); err != nil {
				return err
			}
		}
		return nil
	})
}

type propertyAssignment struct {
	id       string
	instance int
	value    string
}

func parsePropertyList(assignments string, instance int) ([]propertyAssignment, error) {
	var out []propertyAssignment
	for _, item := range strings.Split(assignments, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("%w: property assignment %q has no value", rfnocerr.ErrConfiguration, item)
		}
		a := propertyAssignment{id: strings.TrimSpace(key), instance: instance, value: strings.TrimSpace(value)}
		if id, inst, found := strings.Cut(a.id, ":"); found {
			idx, err := strconv.Atoi(inst)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: property id %q contains a malformed instance override", rfnocerr.ErrConfiguration, a.id)
			}
			a.id, a.instance = id, idx
		}
		out = append(out, a)
	}
	return out, nil
}

func withAccess(p property.Prop, a property.Access, fn func() error) error {
	prev := p.Access()
	p.SetAccess(a)
	defer p.SetAccess(prev)
	return fn()
}

// writeUser applies write under the property lock and hands off to the host
// so that the write and the following pass are serialized together.
func (n *Node) writeUser(ctx context.Context, write func() error) error {
	locked := func() error {
		n.mu.Lock()
		defer n.mu.Unlock()
		return write()
	}
	if h := n.Host(); h != nil {
		return h.ResolveFrom(ctx, n, locked)
	}
	return locked()
}

// PropertyIDs lists the ids of all user properties, in registration order.
func (n *Node) PropertyIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []string
	seen := make(map[string]bool)
	for _, p := range n.props {
		if p.Source().Type == property.User && !seen[p.ID()] {
			seen[p.ID()] = true
			ids = append(ids, p.ID())
		}
	}
	return ids
}

// Props returns the registered properties matching keep.
func (n *Node) Props(keep func(property.Prop) bool) []property.Prop {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []property.Prop
	for _, p := range n.props {
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// EdgeProps returns all input and output edge properties.
func (n *Node) EdgeProps() []property.Prop {
	return n.Props(func(p property.Prop) bool { return p.Source().Type.IsEdge() })
}

// DirtyProps returns dirty properties, ignoring the framework marker.
func (n *Node) DirtyProps() []property.Prop {
	return n.Props(func(p property.Prop) bool {
		return p.IsDirty() && p.Source().Type != property.Framework
	})
}

// IsDirty reports whether any non-framework property is dirty.
func (n *Node) IsDirty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.props {
		if p.IsDirty() && p.Source().Type != property.Framework {
			return true
		}
	}
	return false
}

// PropertyValue is one entry of a node snapshot.
type PropertyValue struct {
	ID     string
	Source property.SourceInfo
	Value  any
}

// Snapshot returns the current value of every user and edge property.
func (n *Node) Snapshot() []PropertyValue {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]PropertyValue, 0, len(n.props))
	for _, p := range n.props {
		if p.Source().Type == property.Framework {
			continue
		}
		out = append(out, PropertyValue{ID: p.ID(), Source: p.Source(), Value: p.Value()})
	}
	return out
}
