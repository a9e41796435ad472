package blocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	Module{}.Register(r)
	require.NoError(t, r.ValidateRegistry(context.Background()))
	return r
}

func build(t *testing.T, r *registry.Registry, blockType string, params map[string]cty.Value) graph.Block {
	t.Helper()
	rb, ok := r.Lookup(blockType)
	require.True(t, ok, "type %s", blockType)
	checked, err := r.CheckParams(blockType, params)
	require.NoError(t, err)
	b, err := rb.New(context.Background(), registry.BlockArgs{ID: "0/" + blockType + "#0", Params: checked})
	require.NoError(t, err)
	return b
}

func TestModuleRegistersEveryBlock(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{
		TypeDDC, TypeDUC, TypeFIFO, TypeFIR, TypeRadio, TypeReplay, TypeSigGen, TypeSwitchboard,
	}, r.Types())

	assert.Panics(t, func() { Module{}.Register(r) }, "registering twice is a programming error")
}

func TestModuleFactories(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("radio channels", func(t *testing.T) {
		b := build(t, r, TypeRadio, map[string]cty.Value{"channels": cty.NumberIntVal(2)})
		radio, ok := b.(*Radio)
		require.True(t, ok)
		assert.Equal(t, 2, radio.NumOutputPorts())
	})

	t.Run("duc interpolates", func(t *testing.T) {
		b := build(t, r, TypeDUC, nil)
		duc, ok := b.(*Resampler)
		require.True(t, ok)
		assert.Equal(t, Interpolate, duc.dir)
	})

	t.Run("common parameters", func(t *testing.T) {
		b := build(t, r, TypeFIFO, map[string]cty.Value{
			"mtu":       cty.NumberIntVal(2048),
			"tick_rate": cty.StringVal("100e6"),
		})
		fifo := b.(*FIFO)
		mtu, err := fifo.MTU(property.InputEdgeSource(0))
		require.NoError(t, err)
		assert.Equal(t, uint64(2048), mtu)
		assert.Equal(t, 100e6, fifo.TickRate())
	})

	t.Run("switchboard shape", func(t *testing.T) {
		b := build(t, r, TypeSwitchboard, map[string]cty.Value{
			"inputs":  cty.NumberIntVal(4),
			"outputs": cty.NumberIntVal(2),
		})
		assert.Equal(t, 4, b.Base().NumInputPorts())
		assert.Equal(t, 2, b.Base().NumOutputPorts())
	})

	t.Run("fir tap limit", func(t *testing.T) {
		rb, _ := r.Lookup(TypeFIR)
		_, err := rb.New(context.Background(), registry.BlockArgs{
			ID:     "0/FIR#0",
			Params: map[string]cty.Value{"max_taps": cty.NumberIntVal(2048)},
		})
		assert.Error(t, err)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		_, err := r.CheckParams(TypeSigGen, map[string]cty.Value{"channels": cty.NumberIntVal(1)})
		assert.ErrorContains(t, err, "has no parameter 'channels'")
	})

	t.Run("mistyped parameter", func(t *testing.T) {
		_, err := r.CheckParams(TypeReplay, map[string]cty.Value{"ports": cty.StringVal("two")})
		assert.ErrorContains(t, err, "type mismatch")
	})
}
