package registry

import (
	"context"
	"fmt"

	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/regs"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ClockController is the device-side clock the radio programs. The firmware
// RPC client implements it.
type ClockController interface {
	SetMasterClockRate(ctx context.Context, rate float64) (float64, error)
}

// BlockArgs is what a factory gets to build one block instance.
type BlockArgs struct {
	ID string
	// Params are already checked against the factory's declaration.
	Params map[string]cty.Value
	// Regs may be nil, in which case blocks use an in-memory register space.
	Regs  regs.Iface
	Clock ClockController
}

// Factory builds a block.
type Factory func(ctx context.Context, args BlockArgs) (graph.Block, error)

// RegisteredBlock holds the compiled Go parts of one block type.
type RegisteredBlock struct {
	New         Factory
	Description string
	// Params declares the accepted parameters and their types.
	Params map[string]cty.Type
}

// Int reads an integer parameter, or def when it was not given.
func (a BlockArgs) Int(name string, def int) (int, error) {
	return param(a, name, def)
}

// Uint64 reads an unsigned parameter, or def when it was not given.
func (a BlockArgs) Uint64(name string, def uint64) (uint64, error) {
	return param(a, name, def)
}

// Float reads a number parameter, or def when it was not given.
func (a BlockArgs) Float(name string, def float64) (float64, error) {
	return param(a, name, def)
}

// Text reads a string parameter, or def when it was not given.
func (a BlockArgs) Text(name string, def string) (string, error) {
	return param(a, name, def)
}

func param[T any](a BlockArgs, name string, def T) (T, error) {
	v, ok := a.Params[name]
	if !ok || v.IsNull() {
		return def, nil
	}
	var out T
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return def, fmt.Errorf("block '%s', parameter '%s': %w", a.ID, name, err)
	}
	return out, nil
}
