package blocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

const (
	PropInputSelect  = "input_select"
	PropOutputSelect = "output_select"
)

const (
	regSwitchOutputSelect uint32 = 0x00
	regSwitchInputSelect  uint32 = 0x04
)

// Switchboard connects each output to one input. Input i is routed to output
// output_select[i]; output o listens to input input_select[o]. A path is live
// when both agree, and only live paths carry properties and actions.
type Switchboard struct {
	*Core

	inputSelect  []*property.Property[int]
	outputSelect []*property.Property[int]

	mu     sync.Mutex
	routes node.ForwardingMap
}

func NewSwitchboard(a Args) *Switchboard {
	if a.NumIn <= 0 {
		a.NumIn = 1
	}
	if a.NumOut <= 0 {
		a.NumOut = 1
	}
	s := &Switchboard{Core: NewCore(a)}

	reroute := func(ctx context.Context) error { return s.reroute(ctx) }
	for i := 0; i < a.NumIn; i++ {
		sel := property.New(PropOutputSelect, 0, property.UserSource(i))
		s.RegisterProperty(sel, func(ctx context.Context) error {
			if err := s.poke(i, regSwitchOutputSelect, uint32(sel.Get())); err != nil {
				return err
			}
			return reroute(ctx)
		})
		s.AddPropertyResolver([]property.Prop{sel}, []property.Prop{sel}, func(context.Context) error {
			return sel.Set(clampIndex(sel.Get(), a.NumOut))
		})
		s.outputSelect = append(s.outputSelect, sel)
	}
	for o := 0; o < a.NumOut; o++ {
		sel := property.New(PropInputSelect, 0, property.UserSource(o))
		s.RegisterProperty(sel, func(ctx context.Context) error {
			if err := s.poke(o, regSwitchInputSelect, uint32(sel.Get())); err != nil {
				return err
			}
			return reroute(ctx)
		})
		s.AddPropertyResolver([]property.Prop{sel}, []property.Prop{sel}, func(context.Context) error {
			return sel.Set(clampIndex(sel.Get(), a.NumIn))
		})
		s.inputSelect = append(s.inputSelect, sel)
	}

	s.SetPropForwardingPolicy(node.UseMap, "")
	s.SetActionForwardingPolicy(node.Drop, "")
	for _, key := range []string{action.KeyStreamCmd, action.KeyRxEvent, action.KeyTxEvent} {
		s.RegisterActionHandler(key, s.routeAction)
	}
	_ = s.SetMTUForwardingPolicy(node.Drop)
	return s
}

func clampIndex(v, n int) int {
	return min(max(v, 0), n-1)
}

// reroute rebuilds the routing table from the select properties. It runs in
// clean callbacks, where the property lock is held.
func (s *Switchboard) reroute(ctx context.Context) error {
	routes := make(node.ForwardingMap)
	for i, outSel := range s.outputSelect {
		o := outSel.Get()
		if s.inputSelect[o].Get() != i {
			continue
		}
		in, out := property.InputEdgeSource(i), property.OutputEdgeSource(o)
		routes[in] = []property.SourceInfo{out}
		routes[out] = []property.SourceInfo{in}
	}
	s.SetPropForwardingMap(routes)

	s.mu.Lock()
	s.routes = routes
	s.mu.Unlock()
	logger(ctx, s.Node).Debug("Updated switchboard routes.", "paths", len(routes)/2)
	return nil
}

// routeAction sends actions along the live path of their port. Routing is
// done here rather than through the action forwarding map so that clean
// callbacks never need the action lock.
func (s *Switchboard) routeAction(ctx context.Context, src property.SourceInfo, a *action.Info) error {
	s.mu.Lock()
	dsts := s.routes[src]
	s.mu.Unlock()
	if len(dsts) == 0 {
		logger(ctx, s.Node).Debug("Dropping action, port is not routed.", "action", a.String(), "port", src.String())
		return nil
	}
	for _, dst := range dsts {
		if err := s.PostAction(ctx, dst, a); err != nil {
			return err
		}
	}
	return nil
}

// Select connects input in to output out in a single pass.
func (s *Switchboard) Select(ctx context.Context, in, out int) error {
	if in < 0 || in >= s.NumInputPorts() || out < 0 || out >= s.NumOutputPorts() {
		return fmt.Errorf("%w: switchboard %s has no path %d -> %d", rfnocerr.ErrUnknownPort, s.ID(), in, out)
	}
	assignments := fmt.Sprintf("%s:%d=%d,%s:%d=%d", PropOutputSelect, in, out, PropInputSelect, out, in)
	return s.SetProperties(ctx, assignments, 0)
}

// Route returns the output input in is routed to, if the path is live.
func (s *Switchboard) Route(in int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dsts := s.routes[property.InputEdgeSource(in)]
	if len(dsts) == 0 {
		return 0, false
	}
	return dsts[0].Instance, true
}
