package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/zclconf/go-cty/cty"
)

func nopFactory(_ context.Context, a BlockArgs) (graph.Block, error) {
	return node.New(a.ID, 1, 1), nil
}

type testModule struct{}

func (testModule) Register(r *Registry) {
	r.RegisterBlock("passthrough", &RegisteredBlock{
		New:    nopFactory,
		Params: map[string]cty.Type{"depth": cty.Number, "label": cty.String},
	})
	r.RegisterBlock("anything", &RegisteredBlock{
		New:    nopFactory,
		Params: map[string]cty.Type{"blob": cty.DynamicPseudoType},
	})
}

func TestRegistry(t *testing.T) {
	r := New()
	testModule{}.Register(r)

	t.Run("types are sorted", func(t *testing.T) {
		assert.Equal(t, []string{"anything", "passthrough"}, r.Types())
	})

	t.Run("lookup", func(t *testing.T) {
		b, ok := r.Lookup("passthrough")
		require.True(t, ok)
		blk, err := b.New(context.Background(), BlockArgs{ID: "X"})
		require.NoError(t, err)
		assert.Equal(t, "X", blk.Base().ID())

		_, ok = r.Lookup("missing")
		assert.False(t, ok)
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		assert.PanicsWithValue(t, "block type 'passthrough' already registered", func() {
			r.RegisterBlock("passthrough", &RegisteredBlock{New: nopFactory})
		})
	})
}

func TestValidateRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		r := New()
		testModule{}.Register(r)
		assert.NoError(t, r.ValidateRegistry(ctx))
	})

	t.Run("missing factory and type", func(t *testing.T) {
		r := New()
		r.RegisterBlock("broken", &RegisteredBlock{Params: map[string]cty.Type{"x": cty.NilType}})
		err := r.ValidateRegistry(ctx)
		require.Error(t, err)
		assert.ErrorContains(t, err, "block 'broken': no factory registered")
		assert.ErrorContains(t, err, "parameter 'x': no type declared")
	})
}

func TestCheckParams(t *testing.T) {
	r := New()
	testModule{}.Register(r)

	t.Run("converts to the declared type", func(t *testing.T) {
		out, err := r.CheckParams("passthrough", map[string]cty.Value{
			"depth": cty.StringVal("64"),
			"label": cty.NumberIntVal(7),
		})
		require.NoError(t, err)
		assert.True(t, out["depth"].Type().Equals(cty.Number))
		assert.Equal(t, "7", out["label"].AsString())
	})

	t.Run("dynamic accepts anything", func(t *testing.T) {
		out, err := r.CheckParams("anything", map[string]cty.Value{"blob": cty.ListVal([]cty.Value{cty.True})})
		require.NoError(t, err)
		assert.True(t, out["blob"].Type().IsListType())
	})

	t.Run("errors are collected", func(t *testing.T) {
		_, err := r.CheckParams("passthrough", map[string]cty.Value{
			"depth": cty.StringVal("deep"),
			"width": cty.NumberIntVal(1),
		})
		require.Error(t, err)
		assert.ErrorContains(t, err, "parameter 'depth': type mismatch, requires 'number'")
		assert.ErrorContains(t, err, "has no parameter 'width'")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.CheckParams("nope", nil)
		assert.ErrorContains(t, err, "registered types are: anything, passthrough")
	})
}

func TestBlockArgs(t *testing.T) {
	a := BlockArgs{ID: "B", Params: map[string]cty.Value{
		"n":    cty.NumberIntVal(3),
		"rate": cty.NumberFloatVal(1.5e6),
		"name": cty.StringVal("rx"),
		"null": cty.NullVal(cty.Number),
		"frac": cty.NumberFloatVal(2.5),
	}}

	n, err := a.Int("n", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rate, err := a.Float("rate", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5e6, rate)

	name, err := a.Text("name", "")
	require.NoError(t, err)
	assert.Equal(t, "rx", name)

	def, err := a.Uint64("null", 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), def)

	missing, err := a.Int("missing", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, missing)

	_, err = a.Int("frac", 0)
	assert.ErrorContains(t, err, "parameter 'frac'")
}
