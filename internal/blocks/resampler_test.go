package blocks

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/regs"
)

func TestCoerceRateFactor(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{in: -4, want: 1},
		{in: 0, want: 1},
		{in: 1, want: 1},
		{in: 1.4, want: 1},
		{in: 1.6, want: 2},
		{in: 3, want: 2},
		{in: 4, want: 4},
		{in: 5, want: 4},
		{in: 6.67, want: 6},
		{in: 511, want: 510},
		{in: 600, want: MaxRateFactor},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CoerceRateFactor(tc.in), "factor %v", tc.in)
	}
}

func TestPhaseIncrement(t *testing.T) {
	cases := []struct {
		name       string
		freq, rate float64
		want       int32
	}{
		{name: "no shift", freq: 0, rate: 200e6, want: 0},
		{name: "quarter rate", freq: 50e6, rate: 200e6, want: 1 << 30},
		{name: "negative quarter rate", freq: -50e6, rate: 200e6, want: -(1 << 30)},
		{name: "nyquist saturates", freq: 100e6, rate: 200e6, want: math.MaxInt32},
		{name: "negative nyquist", freq: -100e6, rate: 200e6, want: math.MinInt32},
		{name: "no rate", freq: 1e6, rate: 0, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PhaseIncrement(tc.freq, tc.rate))
		})
	}
}

func newTestDDC(t *testing.T, ctx context.Context) (*Resampler, *regs.Memory) {
	t.Helper()
	mem := regs.NewMemory()
	d := NewDDC(Args{ID: "0/DDC#0", Regs: mem}, 1)
	require.NoError(t, d.InitProps(ctx))
	return d, mem
}

func rates(t *testing.T, r *Resampler) (in, out float64) {
	t.Helper()
	in, err := r.InputRate(0)
	require.NoError(t, err)
	out, err = r.OutputRate(0)
	require.NoError(t, err)
	return in, out
}

func TestDDC(t *testing.T) {
	ctx := context.Background()

	t.Run("decimation divides the output rate", func(t *testing.T) {
		d, mem := newTestDDC(t, ctx)
		require.NoError(t, d.SetFactor(ctx, 4, 0))
		require.NoError(t, d.Resolve(ctx))

		in, out := rates(t, d)
		assert.Equal(t, 200e6, in)
		assert.Equal(t, 50e6, out)
		assert.Equal(t, uint32(4), lastReg(t, mem, 0, regResampFactor))
	})

	t.Run("odd decimation is coerced", func(t *testing.T) {
		d, _ := newTestDDC(t, ctx)
		require.NoError(t, d.SetFactor(ctx, 7, 0))
		require.NoError(t, d.Resolve(ctx))
		f, err := d.Factor(0)
		require.NoError(t, err)
		assert.Equal(t, 6, f)
	})

	t.Run("output rate picks the decimation", func(t *testing.T) {
		d, _ := newTestDDC(t, ctx)
		require.NoError(t, d.SetOutputRate(ctx, 25e6, 0))
		require.NoError(t, d.Resolve(ctx))

		f, err := d.Factor(0)
		require.NoError(t, err)
		assert.Equal(t, 8, f)
		in, out := rates(t, d)
		assert.Equal(t, 200e6, in)
		assert.Equal(t, 25e6, out)
	})

	t.Run("frequency is limited to the input nyquist", func(t *testing.T) {
		d, mem := newTestDDC(t, ctx)
		require.NoError(t, d.SetFreq(ctx, 150e6, 0))
		require.NoError(t, d.Resolve(ctx))
		freq, err := node.GetProperty[float64](d.Node, PropFreq, 0)
		require.NoError(t, err)
		assert.Equal(t, 100e6, freq)
		assert.Equal(t, uint32(math.MaxInt32), lastReg(t, mem, 0, regResampPhase))
	})

	t.Run("scaling is clamped to the register width", func(t *testing.T) {
		d, mem := newTestDDC(t, ctx)
		require.NoError(t, node.SetProperty(ctx, d.Node, PropScaling, 2.0, 0))
		require.NoError(t, d.Resolve(ctx))
		assert.Equal(t, uint32(2*scalingFixedPoint), lastReg(t, mem, 0, regResampScaling))

		require.NoError(t, node.SetProperty(ctx, d.Node, PropScaling, 10.0, 0))
		require.NoError(t, d.Resolve(ctx))
		assert.Equal(t, uint32(maxScalingReg), lastReg(t, mem, 0, regResampScaling))
	})

	t.Run("item type is fixed", func(t *testing.T) {
		d, _ := newTestDDC(t, ctx)
		require.NoError(t, node.SetProperty(ctx, d.Node, PropType, "fc32", 0))
		require.NoError(t, d.Resolve(ctx))
		typ, err := node.GetProperty[string](d.Node, PropType, 0)
		require.NoError(t, err)
		assert.Equal(t, IOTypeSC16, typ)
	})
}

func TestDUC(t *testing.T) {
	ctx := context.Background()
	d := NewDUC(Args{ID: "0/DUC#0"}, 2)
	require.NoError(t, d.InitProps(ctx))

	_, err := node.GetProperty[int](d.Node, PropDecim, 0)
	assert.Error(t, err, "interpolators have no decim property")

	require.NoError(t, d.SetFactor(ctx, 4, 1))
	require.NoError(t, d.Resolve(ctx))

	in, err := d.InputRate(1)
	require.NoError(t, err)
	out, err := d.OutputRate(1)
	require.NoError(t, err)
	assert.Equal(t, 50e6, in)
	assert.Equal(t, 200e6, out)

	f, err := d.Factor(0)
	require.NoError(t, err)
	assert.Equal(t, 1, f, "channels are independent")
}

// Each way into the rate relation of a decimator lands on out == in/decim
// with nothing left dirty.
func TestDDCRateEntryPoints(t *testing.T) {
	ctx := context.Background()
	triggers := []struct {
		name    string
		set     func(d *Resampler) error
		wantIn  float64
		wantOut float64
		factor  int
	}{
		{
			name:    "decim",
			set:     func(d *Resampler) error { return d.SetFactor(ctx, 4, 0) },
			wantIn:  200e6,
			wantOut: 50e6,
			factor:  4,
		},
		{
			name:    "samp_rate_in",
			set:     func(d *Resampler) error { return d.SetInputRate(ctx, 400e6, 0) },
			wantIn:  400e6,
			wantOut: 100e6,
			factor:  4,
		},
		{
			name:    "samp_rate_out",
			set:     func(d *Resampler) error { return d.SetOutputRate(ctx, 25e6, 0) },
			wantIn:  200e6,
			wantOut: 25e6,
			factor:  8,
		},
	}

	for _, tc := range triggers {
		t.Run("standalone "+tc.name, func(t *testing.T) {
			d, _ := newTestDDC(t, ctx)
			require.NoError(t, d.SetFactor(ctx, 2, 0))
			require.NoError(t, d.Resolve(ctx))

			require.NoError(t, tc.set(d))
			require.NoError(t, d.Resolve(ctx))

			f, err := d.Factor(0)
			require.NoError(t, err)
			assert.Equal(t, tc.factor, f)
			in, out := rates(t, d)
			assert.Equal(t, tc.wantIn, in)
			assert.Equal(t, tc.wantOut, out)
			assert.False(t, d.IsDirty())
		})
	}

	for _, tc := range triggers {
		t.Run("in a graph "+tc.name, func(t *testing.T) {
			c := newRxChain(t, ctx)
			require.NoError(t, tc.set(c.ddc))

			f, err := c.ddc.Factor(0)
			require.NoError(t, err)
			in, out := rates(t, c.ddc)
			assert.InDelta(t, in/float64(f), out, 1)
			assert.InDelta(t, out, c.rxRate(t), 1)
			for _, b := range []interface{ IsDirty() bool }{c.radio, c.ddc, c.rx} {
				assert.False(t, b.IsDirty())
			}
		})
	}
}
