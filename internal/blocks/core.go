package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/regs"
	"github.com/vk/rfnocgo/internal/rfnocerr"
)

// Property keys shared between blocks.
const (
	PropSampRate         = "samp_rate"
	PropTickRate         = "tick_rate"
	PropMTU              = "mtu"
	PropAtomicItemSize   = "atomic_item_size"
	PropSamplesPerPacket = "spp"
)

const (
	DefaultMTU      uint64 = 8192
	DefaultTickRate        = 200e6
	DefaultSampRate        = 200e6

	// chdrHeaderBytes is the packet header overhead subtracted from the MTU
	// when sizing payloads.
	chdrHeaderBytes = 16
	bytesPerSample  = 4
	// portStride separates the register banks of consecutive ports.
	portStride = 0x80
)

// Args are the construction arguments shared by all blocks.
type Args struct {
	ID     string
	NumIn  int
	NumOut int
	// Regs defaults to an in-memory register space.
	Regs regs.Iface
	// MTU is the hardware maximum on every edge. Zero means DefaultMTU.
	MTU uint64
	// TickRate is the initial timebase. Zero means DefaultTickRate.
	TickRate float64
}

func (a Args) withDefaults() Args {
	if a.Regs == nil {
		a.Regs = regs.NewMemory()
	}
	if a.MTU == 0 {
		a.MTU = DefaultMTU
	}
	if a.TickRate == 0 {
		a.TickRate = DefaultTickRate
	}
	return a
}

// Core is the part every block shares.
type Core struct {
	*node.Node
	regs regs.Iface

	tickProps []*property.Property[float64]
	mtuProps  []*property.Property[uint64]

	// stateMu guards the fields below. Resolvers take it while the node
	// lock is held.
	stateMu          sync.Mutex
	tickRate         float64
	tickConfigurable bool
	mtu              map[property.SourceInfo]uint64
	mtuPolicySet     bool
}

// NewCore creates the node with its tick-rate and MTU edge properties.
func NewCore(a Args) *Core {
	a = a.withDefaults()
	b := &Core{
		Node:             node.New(a.ID, a.NumIn, a.NumOut),
		regs:             a.Regs,
		tickRate:         a.TickRate,
		tickConfigurable: true,
		mtu:              make(map[property.SourceInfo]uint64),
	}

	for _, src := range edgeSources(a.NumIn, a.NumOut) {
		b.tickProps = append(b.tickProps, property.New(PropTickRate, a.TickRate, src))
		b.mtuProps = append(b.mtuProps, property.New(PropMTU, a.MTU, src))
		b.mtu[src] = a.MTU
	}

	ticks := make([]property.Prop, len(b.tickProps))
	for i, p := range b.tickProps {
		b.RegisterProperty(p)
		ticks[i] = p
	}
	for _, p := range b.tickProps {
		b.AddPropertyResolver([]property.Prop{p}, ticks, func(ctx context.Context) error {
			rate := b.applyTickRate(ctx, p.Get())
			for _, t := range b.tickProps {
				if err := t.Set(rate); err != nil {
					return err
				}
			}
			return nil
		})
	}

	for _, p := range b.mtuProps {
		b.RegisterProperty(p)
	}
	for _, p := range b.mtuProps {
		b.AddPropertyResolver([]property.Prop{p}, []property.Prop{p}, func(context.Context) error {
			b.stateMu.Lock()
			defer b.stateMu.Unlock()
			coerced := min(p.Get(), b.mtu[p.Source()])
			if err := p.Set(coerced); err != nil {
				return err
			}
			b.mtu[p.Source()] = p.Get()
			return nil
		})
	}
	return b
}

func logger(ctx context.Context, n *node.Node) *slog.Logger {
	return ctxlog.FromContext(ctx).With("block", n.ID())
}

// edgeSources lists all input ports followed by all output ports.
func edgeSources(numIn, numOut int) []property.SourceInfo {
	out := make([]property.SourceInfo, 0, numIn+numOut)
	for i := 0; i < numIn; i++ {
		out = append(out, property.InputEdgeSource(i))
	}
	for i := 0; i < numOut; i++ {
		out = append(out, property.OutputEdgeSource(i))
	}
	return out
}

// applyTickRate adopts rate when the timebase is configurable and returns
// the timebase now in effect.
func (b *Core) applyTickRate(ctx context.Context, rate float64) float64 {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	switch {
	case rate == b.tickRate:
	case rate <= 0:
		logger(ctx, b.Node).Warn("Attempting to set tick rate to 0. Skipping.")
	case !b.tickConfigurable:
		logger(ctx, b.Node).Warn("Cannot change tick rate, this clock is not configurable by the graph.",
			"requested_mhz", rate/1e6, "tick_rate_mhz", b.tickRate/1e6)
	default:
		b.tickRate = rate
	}
	return b.tickRate
}

// setTickRateLocked is for blocks that own their timebase. It must run from
// a resolver that lists the tick-rate properties as outputs.
func (b *Core) setTickRateLocked(rate float64) error {
	b.stateMu.Lock()
	b.tickRate = rate
	b.stateMu.Unlock()
	for _, t := range b.tickProps {
		if err := t.Set(rate); err != nil {
			return err
		}
	}
	return nil
}

func (b *Core) tickPropRefs() []property.Prop {
	out := make([]property.Prop, len(b.tickProps))
	for i, p := range b.tickProps {
		out[i] = p
	}
	return out
}

// TickRate returns the timebase of the block.
func (b *Core) TickRate() float64 {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.tickRate
}

// SetTickRate writes the tick rate and lets the graph spread it.
func (b *Core) SetTickRate(ctx context.Context, rate float64) error {
	if len(b.tickProps) == 0 {
		return nil
	}
	return node.SetPropertyAt(ctx, b.Node, PropTickRate, rate, b.tickProps[0].Source())
}

// MTU returns the current MTU on edge.
func (b *Core) MTU(edge property.SourceInfo) (uint64, error) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	v, ok := b.mtu[edge]
	if !ok {
		return 0, fmt.Errorf("%w: block %s has no MTU on edge %s", rfnocerr.ErrUnknownPort, b.ID(), edge)
	}
	return v, nil
}

// SetMTU requests a new MTU on edge. The value is coerced down to the
// hardware maximum.
func (b *Core) SetMTU(ctx context.Context, edge property.SourceInfo, mtu uint64) error {
	if !edge.Type.IsEdge() {
		return fmt.Errorf("%w: MTU must be set on an input or output edge, not %s", rfnocerr.ErrConfiguration, edge)
	}
	return node.SetPropertyAt(ctx, b.Node, PropMTU, mtu, edge)
}

// maxPayload is the MTU on edge minus the packet header.
func (b *Core) maxPayload(edge property.SourceInfo) uint64 {
	mtu, err := b.MTU(edge)
	if err != nil || mtu <= chdrHeaderBytes {
		return 0
	}
	return mtu - chdrHeaderBytes
}

func (b *Core) mtuProp(edge property.SourceInfo) *property.Property[uint64] {
	for _, p := range b.mtuProps {
		if p.Source() == edge {
			return p
		}
	}
	return nil
}

// SetMTUForwardingPolicy decides how an MTU arriving on one edge spreads to
// the others. Only DROP, ONE_TO_ONE, ONE_TO_ALL and ONE_TO_FAN are valid,
// and the policy can be set once per block.
func (b *Core) SetMTUForwardingPolicy(policy node.ForwardingPolicy) error {
	b.stateMu.Lock()
	if b.mtuPolicySet {
		b.stateMu.Unlock()
		return fmt.Errorf("%w: block %s: MTU forwarding policy can only be set once", rfnocerr.ErrConfiguration, b.ID())
	}
	b.mtuPolicySet = true
	b.stateMu.Unlock()

	switch policy {
	case node.Drop:
		return nil
	case node.OneToOne, node.OneToAll, node.OneToFan:
	default:
		return fmt.Errorf("%w: block %s: MTU forwarding policy must be DROP, ONE_TO_ONE, ONE_TO_ALL or ONE_TO_FAN, not %s",
			rfnocerr.ErrConfiguration, b.ID(), policy)
	}

	for _, p := range b.mtuProps {
		src := p.Source()
		var dsts []*property.Property[uint64]
		var outputs []property.Prop
		for _, other := range b.mtuProps {
			dst := other.Source()
			var add bool
			switch policy {
			case node.OneToOne:
				add = dst == src.Inverted()
			case node.OneToAll:
				add = dst.Type != src.Type && dst.Instance != src.Instance
			case node.OneToFan:
				add = dst.Type == property.InvertEdge(src.Type)
			}
			if add {
				dsts = append(dsts, other)
				outputs = append(outputs, other)
			}
		}
		b.AddPropertyResolver([]property.Prop{p}, outputs, func(context.Context) error {
			b.stateMu.Lock()
			defer b.stateMu.Unlock()
			mtu := min(p.Get(), b.mtu[p.Source()])
			for _, dst := range dsts {
				if err := dst.Set(mtu); err != nil {
					return err
				}
				b.mtu[dst.Source()] = dst.Get()
			}
			return nil
		})
	}
	return nil
}

// Regs returns the register interface of the block.
func (b *Core) Regs() regs.Iface { return b.regs }

func (b *Core) poke(port int, offset, data uint32) error {
	return b.regs.Poke32(uint32(port)*portStride+offset, data, b.CommandTime(port))
}

func (b *Core) peek(port int, offset uint32) (uint32, error) {
	return b.regs.Peek32(uint32(port)*portStride+offset, nil)
}

func (b *Core) poke64(port int, offset uint32, data uint64) error {
	if err := b.poke(port, offset, uint32(data)); err != nil {
		return err
	}
	return b.poke(port, offset+4, uint32(data>>32))
}
