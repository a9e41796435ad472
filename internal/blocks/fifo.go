package blocks

import (
	"context"
	"math/bits"

	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
)

const (
	PropDepth = "depth"

	DefaultFIFODepth = 1024
	MaxFIFODepth     = 1 << 20
)

const regFIFODepth uint32 = 0x00

// FIFO buffers each channel and passes properties and actions straight
// through, input i to output i.
type FIFO struct {
	*Core
}

// CoerceDepth rounds a depth up to a power of two within range.
func CoerceDepth(d int) int {
	if d <= 1 {
		return 1
	}
	p := 1 << bits.Len(uint(d-1))
	return min(p, MaxFIFODepth)
}

func NewFIFO(a Args, channels int) *FIFO {
	if channels <= 0 {
		channels = 1
	}
	a.NumIn, a.NumOut = channels, channels
	f := &FIFO{Core: NewCore(a)}
	for ch := 0; ch < channels; ch++ {
		depth := property.New(PropDepth, DefaultFIFODepth, property.UserSource(ch))
		f.RegisterProperty(depth, func(context.Context) error {
			return f.poke(ch, regFIFODepth, uint32(depth.Get()))
		})
		f.AddPropertyResolver([]property.Prop{depth}, []property.Prop{depth}, func(context.Context) error {
			return depth.Set(CoerceDepth(depth.Get()))
		})
	}
	f.SetPropForwardingPolicy(node.OneToOne, "")
	f.SetActionForwardingPolicy(node.OneToOne, "")
	_ = f.SetMTUForwardingPolicy(node.OneToOne)
	return f
}

func (f *FIFO) Depth(ch int) (int, error) {
	return node.GetProperty[int](f.Node, PropDepth, ch)
}
