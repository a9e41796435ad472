package blocks

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/registry"
	"github.com/vk/rfnocgo/internal/rfnocerr"
	"github.com/zclconf/go-cty/cty"
)

// Module registers every block type of this package.
type Module struct{}

var _ registry.Module = Module{}

// Block type names used in description files.
const (
	TypeRadio       = "radio"
	TypeDDC         = "ddc"
	TypeDUC         = "duc"
	TypeFIFO        = "fifo"
	TypeReplay      = "replay"
	TypeSwitchboard = "switchboard"
	TypeSigGen      = "siggen"
	TypeFIR         = "fir"
)

var commonParams = map[string]cty.Type{
	"mtu":       cty.Number,
	"tick_rate": cty.Number,
}

func withCommon(extra map[string]cty.Type) map[string]cty.Type {
	out := make(map[string]cty.Type, len(commonParams)+len(extra))
	for k, v := range commonParams {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func coreArgs(a registry.BlockArgs) (Args, error) {
	mtu, err := a.Uint64("mtu", 0)
	if err != nil {
		return Args{}, err
	}
	tick, err := a.Float("tick_rate", 0)
	if err != nil {
		return Args{}, err
	}
	return Args{ID: a.ID, Regs: a.Regs, MTU: mtu, TickRate: tick}, nil
}

// Register adds the block factories to r.
func (Module) Register(r *registry.Registry) {
	r.RegisterBlock(TypeRadio, &registry.RegisteredBlock{
		Description: "Radio front end, one RX output and one TX input per channel.",
		Params:      withCommon(map[string]cty.Type{"channels": cty.Number}),
		New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
			args, err := coreArgs(a)
			if err != nil {
				return nil, err
			}
			channels, err := a.Int("channels", 1)
			if err != nil {
				return nil, err
			}
			ra := RadioArgs{Args: args, Channels: channels}
			if a.Clock != nil {
				ra.Clock = a.Clock
			}
			return NewRadio(ra), nil
		},
	})

	for _, t := range []string{TypeDDC, TypeDUC} {
		dir := Decimate
		if t == TypeDUC {
			dir = Interpolate
		}
		r.RegisterBlock(t, &registry.RegisteredBlock{
			Description: "Digital rate changer with frequency shift.",
			Params:      withCommon(map[string]cty.Type{"channels": cty.Number}),
			New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
				args, err := coreArgs(a)
				if err != nil {
					return nil, err
				}
				channels, err := a.Int("channels", 1)
				if err != nil {
					return nil, err
				}
				return NewResampler(ResamplerArgs{Args: args, Channels: channels, Direction: dir}), nil
			},
		})
	}

	r.RegisterBlock(TypeFIFO, &registry.RegisteredBlock{
		Description: "Pass-through buffer.",
		Params:      withCommon(map[string]cty.Type{"channels": cty.Number}),
		New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
			args, err := coreArgs(a)
			if err != nil {
				return nil, err
			}
			channels, err := a.Int("channels", 1)
			if err != nil {
				return nil, err
			}
			return NewFIFO(args, channels), nil
		},
	})

	r.RegisterBlock(TypeReplay, &registry.RegisteredBlock{
		Description: "Record and playback buffer.",
		Params:      withCommon(map[string]cty.Type{"ports": cty.Number, "mem_size": cty.Number}),
		New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
			args, err := coreArgs(a)
			if err != nil {
				return nil, err
			}
			ports, err := a.Int("ports", 1)
			if err != nil {
				return nil, err
			}
			mem, err := a.Uint64("mem_size", DefaultReplayMemSize)
			if err != nil {
				return nil, err
			}
			return NewReplay(ReplayArgs{Args: args, Ports: ports, MemSize: mem}), nil
		},
	})

	r.RegisterBlock(TypeSwitchboard, &registry.RegisteredBlock{
		Description: "Routes each output to one selected input.",
		Params:      withCommon(map[string]cty.Type{"inputs": cty.Number, "outputs": cty.Number}),
		New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
			args, err := coreArgs(a)
			if err != nil {
				return nil, err
			}
			if args.NumIn, err = a.Int("inputs", 1); err != nil {
				return nil, err
			}
			if args.NumOut, err = a.Int("outputs", 1); err != nil {
				return nil, err
			}
			return NewSwitchboard(args), nil
		},
	})

	r.RegisterBlock(TypeSigGen, &registry.RegisteredBlock{
		Description: "Constant, sine and noise source.",
		Params:      withCommon(map[string]cty.Type{"outputs": cty.Number}),
		New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
			args, err := coreArgs(a)
			if err != nil {
				return nil, err
			}
			outputs, err := a.Int("outputs", 1)
			if err != nil {
				return nil, err
			}
			return NewSigGen(args, outputs), nil
		},
	})

	r.RegisterBlock(TypeFIR, &registry.RegisteredBlock{
		Description: "FIR filter with reloadable taps.",
		Params:      withCommon(map[string]cty.Type{"channels": cty.Number, "max_taps": cty.Number}),
		New: func(_ context.Context, a registry.BlockArgs) (graph.Block, error) {
			args, err := coreArgs(a)
			if err != nil {
				return nil, err
			}
			channels, err := a.Int("channels", 1)
			if err != nil {
				return nil, err
			}
			taps, err := a.Int("max_taps", DefaultMaxTaps)
			if err != nil {
				return nil, err
			}
			if taps > 1024 {
				return nil, fmt.Errorf("%w: block %s: max_taps %d is larger than 1024", rfnocerr.ErrConfiguration, a.ID, taps)
			}
			return NewFIR(args, channels, taps), nil
		},
	})
}
