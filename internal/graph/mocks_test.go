package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
)

const (
	maxDecim    = 512
	defaultRate = 1e9
)

// mockRadio is full duplex with two master clock rates, 100e6 and 200e6.
// RSSI is recomputed on every visit.
type mockRadio struct {
	*node.Node
	sampRateIn  *property.Property[float64]
	sampRateOut *property.Property[float64]
	mcr         *property.Property[float64]
	rssi        *property.Property[float64]

	mu             sync.Mutex
	rssiCount      int
	lastNumSamps   uint64
	streamCommands []action.StreamMode
}

func newMockRadio(idx int) *mockRadio {
	r := &mockRadio{
		Node:        node.New(fmt.Sprintf("MOCK_RADIO%d", idx), 1, 1),
		sampRateIn:  property.New("samp_rate", 200e6, property.InputEdgeSource(0)),
		sampRateOut: property.New("samp_rate", 200e6, property.OutputEdgeSource(0)),
		mcr:         property.New("master_clock_rate", 200e6, property.UserSource(0)),
		rssi:        property.New("rssi", 0.0, property.UserSource(0)),
	}
	r.RegisterProperty(r.sampRateIn)
	r.RegisterProperty(r.sampRateOut)
	r.RegisterProperty(r.mcr)
	r.RegisterProperty(r.rssi)

	r.AddPropertyResolver([]property.Prop{r.sampRateIn}, []property.Prop{r.sampRateIn}, func(context.Context) error {
		return r.sampRateIn.Set(r.mcr.Get())
	})
	r.AddPropertyResolver([]property.Prop{r.sampRateOut}, []property.Prop{r.sampRateOut}, func(context.Context) error {
		return r.sampRateOut.Set(r.mcr.Get())
	})
	r.AddPropertyResolver([]property.Prop{r.mcr}, []property.Prop{r.mcr, r.sampRateIn, r.sampRateOut}, func(context.Context) error {
		rate := 100e6
		if r.mcr.Get() > 150e6 {
			rate = 200e6
		}
		if err := r.mcr.Set(rate); err != nil {
			return err
		}
		if err := r.sampRateIn.Set(rate); err != nil {
			return err
		}
		return r.sampRateOut.Set(rate)
	})
	r.AddPropertyResolver([]property.Prop{r.AlwaysDirty()}, []property.Prop{r.rssi}, func(context.Context) error {
		r.mu.Lock()
		r.rssiCount++
		count := r.rssiCount
		r.mu.Unlock()
		return r.rssi.Set(float64(count))
	})

	r.SetActionForwardingPolicy(node.Drop, "")
	r.RegisterActionHandler(action.KeyStreamCmd, func(_ context.Context, _ property.SourceInfo, a *action.Info) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.streamCommands = append(r.streamCommands, a.StreamCmd.Mode)
		if a.StreamCmd.Mode == action.NumSampsAndDone || a.StreamCmd.Mode == action.NumSampsAndMore {
			r.lastNumSamps = a.StreamCmd.NumSamps
		}
		return nil
	})
	return r
}

func (r *mockRadio) rssiResolverCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rssiCount
}

func (r *mockRadio) generateOverrun(ctx context.Context, channel int) error {
	return r.PostAction(ctx, property.OutputEdgeSource(channel),
		action.NewAsyncEvent(action.KeyRxEvent, action.AsyncEvent{Code: action.Overflow, Channel: channel}))
}

func coerceDecim(d int) int {
	if d <= 1 {
		return 1
	}
	return min(d-d%2, maxDecim)
}

// mockDDC keeps its rates consistent with an even decimation.
type mockDDC struct {
	*node.Node
	sampRateIn  *property.Property[float64]
	sampRateOut *property.Property[float64]
	decim       *property.Property[int]
}

func newMockDDC() *mockDDC {
	d := &mockDDC{
		Node:        node.New("MOCK_DDC", 1, 1),
		sampRateIn:  property.New("samp_rate", float64(defaultRate), property.InputEdgeSource(0)),
		sampRateOut: property.New("samp_rate", float64(defaultRate), property.OutputEdgeSource(0)),
		decim:       property.New("decim", 1, property.UserSource(0)),
	}
	d.RegisterProperty(d.sampRateIn)
	d.RegisterProperty(d.sampRateOut)
	d.RegisterProperty(d.decim)

	d.AddPropertyResolver([]property.Prop{d.decim}, []property.Prop{d.decim, d.sampRateOut}, func(context.Context) error {
		if err := d.decim.Set(coerceDecim(d.decim.Get())); err != nil {
			return err
		}
		return d.sampRateOut.Set(d.sampRateIn.Get() / float64(d.decim.Get()))
	})
	d.AddPropertyResolver([]property.Prop{d.sampRateIn}, []property.Prop{d.decim, d.sampRateOut}, func(context.Context) error {
		if err := d.decim.Set(coerceDecim(int(d.sampRateIn.Get() / d.sampRateOut.Get()))); err != nil {
			return err
		}
		return d.sampRateOut.Set(d.sampRateIn.Get() / float64(d.decim.Get()))
	})
	d.AddPropertyResolver([]property.Prop{d.sampRateOut}, []property.Prop{d.decim, d.sampRateIn}, func(context.Context) error {
		if err := d.decim.Set(coerceDecim(int(d.sampRateIn.Get() / d.sampRateOut.Get()))); err != nil {
			return err
		}
		return d.sampRateIn.Set(d.sampRateOut.Get() * float64(d.decim.Get()))
	})

	d.RegisterActionHandler(action.KeyStreamCmd, func(ctx context.Context, src property.SourceInfo, a *action.Info) error {
		fwd := action.NewStreamCmd(*a.StreamCmd)
		if m := fwd.StreamCmd.Mode; m == action.NumSampsAndDone || m == action.NumSampsAndMore {
			if src.Type == property.OutputEdge {
				fwd.StreamCmd.NumSamps *= uint64(d.decim.Get())
			} else {
				fwd.StreamCmd.NumSamps /= uint64(d.decim.Get())
			}
		}
		return d.PostAction(ctx, src.Inverted(), fwd)
	})
	return d
}

func newMockFIFO(id string, numIn, numOut int) *node.Node {
	n := node.New(id, numIn, numOut)
	n.SetPropForwardingPolicy(node.OneToOne, "")
	n.SetActionForwardingPolicy(node.OneToOne, "")
	return n
}

// mockTerminator drops everything and records the actions it expects.
type mockTerminator struct {
	*node.Node
	mu       sync.Mutex
	received []*action.Info
}

func newMockTerminator(id string, ports int, expected ...string) *mockTerminator {
	t := &mockTerminator{Node: node.New(id, ports, ports)}
	t.SetPropForwardingPolicy(node.Drop, "")
	t.SetActionForwardingPolicy(node.Drop, "")
	for _, key := range expected {
		t.RegisterActionHandler(key, func(_ context.Context, _ property.SourceInfo, a *action.Info) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.received = append(t.received, a)
			return nil
		})
	}
	return t
}

func (t *mockTerminator) receivedActions() []*action.Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*action.Info(nil), t.received...)
}

// mockEdgeNode carries an int edge property "prop" on every port and
// records "action" actions by arrival port.
type mockEdgeNode struct {
	*node.Node
	mu       sync.Mutex
	received map[property.SourceInfo][]*action.Info
}

func newMockEdgeNode(id string, inputs, outputs int) *mockEdgeNode {
	e := &mockEdgeNode{
		Node:     node.New(id, inputs, outputs),
		received: make(map[property.SourceInfo][]*action.Info),
	}
	e.SetActionForwardingPolicy(node.OneToOne, "")
	for i := 0; i < inputs; i++ {
		e.RegisterProperty(property.New("prop", 0, property.InputEdgeSource(i)))
	}
	for i := 0; i < outputs; i++ {
		e.RegisterProperty(property.New("prop", 0, property.OutputEdgeSource(i)))
	}
	e.RegisterActionHandler("action", func(_ context.Context, src property.SourceInfo, a *action.Info) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.received[src] = append(e.received[src], a)
		return nil
	})
	return e
}

func (e *mockEdgeNode) receivedActions() map[property.SourceInfo][]*action.Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[property.SourceInfo][]*action.Info, len(e.received))
	for k, v := range e.received {
		out[k] = append([]*action.Info(nil), v...)
	}
	return out
}

// newMockRouter drops by default. Installing a map switches to USE_MAP.
func newMockRouter(inputs, outputs int) *node.Node {
	n := node.New("MOCK_ROUTING_NODE", inputs, outputs)
	n.SetPropForwardingPolicy(node.Drop, "")
	n.SetActionForwardingPolicy(node.Drop, "")
	return n
}

func setPropMap(n *node.Node, m node.ForwardingMap) {
	n.SetPropForwardingPolicy(node.UseMap, "")
	n.SetPropForwardingMap(m)
}

func setActionMap(n *node.Node, m node.ForwardingMap) {
	n.SetActionForwardingPolicy(node.UseMap, "")
	n.SetActionForwardingMap(m)
}

// newAISNode keeps its atomic item size at a multiple of four, or pinned to
// eight when pinned is set.
func newAISNode(id string, pinned bool) *node.Node {
	n := node.New(id, 1, 1)
	in := property.New[uint64]("atomic_item_size", 4, property.InputEdgeSource(0))
	out := property.New[uint64]("atomic_item_size", 8, property.OutputEdgeSource(0))
	n.RegisterProperty(in)
	n.RegisterProperty(out)
	coerce := func(v uint64) uint64 {
		if pinned {
			return 8
		}
		return max(4, (v/4)*4)
	}
	n.AddPropertyResolver([]property.Prop{in}, []property.Prop{in}, func(context.Context) error { return in.Set(coerce(in.Get())) })
	n.AddPropertyResolver([]property.Prop{out}, []property.Prop{out}, func(context.Context) error { return out.Set(coerce(out.Get())) })
	return n
}

// newCircularNode keeps x2 = 2*x1, x4 = 2*x2 and x1 = x4/4.
func newCircularNode() *node.Node {
	n := node.New("MOCK_CIRCULAR", 1, 1)
	x1 := property.New("x1", 1, property.UserSource(0))
	x2 := property.New("x2", 2, property.UserSource(0))
	x4 := property.New("x4", 4, property.UserSource(0))
	n.RegisterProperty(x1)
	n.RegisterProperty(x2)
	n.RegisterProperty(x4)
	n.AddPropertyResolver([]property.Prop{x1}, []property.Prop{x2}, func(context.Context) error { return x2.Set(2 * x1.Get()) })
	n.AddPropertyResolver([]property.Prop{x2}, []property.Prop{x4}, func(context.Context) error { return x4.Set(2 * x2.Get()) })
	n.AddPropertyResolver([]property.Prop{x4}, []property.Prop{x1}, func(context.Context) error { return x1.Set(x4.Get() / 4) })
	return n
}

// newContradictionNode has two resolvers that can never agree on y.
func newContradictionNode(factor float64) *node.Node {
	n := node.New("MOCK_INVALID_NODE2", 1, 1)
	x := property.New("x", 3.0, property.UserSource(0))
	y := property.New("y", 0.0, property.UserSource(0))
	n.RegisterProperty(x)
	n.RegisterProperty(y)
	n.AddPropertyResolver([]property.Prop{x}, []property.Prop{y}, func(context.Context) error { return y.Set(x.Get() * factor) })
	n.AddPropertyResolver([]property.Prop{x}, []property.Prop{y}, func(context.Context) error { return y.Set(x.Get() + factor) })
	return n
}

// newBouncer returns a node that answers every "ping" by sending it back
// out of the port it came in on.
func newBouncer(id string) *node.Node {
	n := node.New(id, 1, 1)
	n.RegisterActionHandler("ping", func(ctx context.Context, src property.SourceInfo, a *action.Info) error {
		return n.PostAction(ctx, src, a)
	})
	return n
}

func initAll(ctx context.Context, blocks ...Block) error {
	for _, b := range blocks {
		if err := b.Base().InitProps(ctx); err != nil {
			return err
		}
	}
	return nil
}

func dynamicEdge(src, dst int) Edge {
	return NewEdge(src, dst, Dynamic, true)
}
