package blocks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/regs"
)

type fakeClock struct {
	mu       sync.Mutex
	requests []float64
	applied  float64
	err      error
}

func (c *fakeClock) SetMasterClockRate(_ context.Context, rate float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, rate)
	if c.err != nil {
		return 0, c.err
	}
	if c.applied != 0 {
		return c.applied, nil
	}
	return rate, nil
}

func (c *fakeClock) calls() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.requests...)
}

func newTestRadio(t *testing.T, ctx context.Context, channels int, clock ClockController) (*Radio, *regs.Memory) {
	t.Helper()
	mem := regs.NewMemory()
	r := NewRadio(RadioArgs{Args: Args{ID: "0/Radio#0", Regs: mem}, Channels: channels, Clock: clock})
	require.NoError(t, r.InitProps(ctx))
	return r, mem
}

func TestCoerceMasterClockRate(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{in: 0, want: 100e6},
		{in: 100e6, want: 100e6},
		{in: 120e6, want: 100e6},
		{in: 150e6, want: 100e6},
		{in: 150.1e6, want: 200e6},
		{in: 245.76e6, want: 200e6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CoerceMasterClockRate(tc.in), "rate %v", tc.in)
	}
}

func TestRadioClockRate(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		r, _ := newTestRadio(t, ctx, 2, nil)
		mcr, err := r.MasterClockRate()
		require.NoError(t, err)
		assert.Equal(t, 200e6, mcr)
		assert.Equal(t, 200e6, r.TickRate())
		assert.Equal(t, 2, r.NumInputPorts())
		assert.Equal(t, 2, r.NumOutputPorts())
	})

	t.Run("changes every rate and reaches the device", func(t *testing.T) {
		clock := &fakeClock{}
		r, _ := newTestRadio(t, ctx, 2, clock)
		require.NoError(t, r.SetMasterClockRate(ctx, 120e6))
		require.NoError(t, r.Resolve(ctx))

		mcr, err := r.MasterClockRate()
		require.NoError(t, err)
		assert.Equal(t, 100e6, mcr)
		assert.Equal(t, 100e6, r.TickRate())
		for _, src := range edgeSources(2, 2) {
			rate, err := node.GetPropertyAt[float64](r.Node, PropSampRate, src)
			require.NoError(t, err)
			assert.Equal(t, 100e6, rate, "samp_rate on %s", src)
		}
		assert.Contains(t, clock.calls(), 100e6)
	})

	t.Run("neighbours cannot move the sample rate", func(t *testing.T) {
		r, _ := newTestRadio(t, ctx, 1, nil)
		require.NoError(t, node.SetPropertyAt(ctx, r.Node, PropSampRate, 50e6, property.OutputEdgeSource(0)))
		require.NoError(t, r.Resolve(ctx))
		rate, err := node.GetPropertyAt[float64](r.Node, PropSampRate, property.OutputEdgeSource(0))
		require.NoError(t, err)
		assert.Equal(t, 200e6, rate)
	})

	t.Run("neighbours cannot move the tick rate", func(t *testing.T) {
		r, _ := newTestRadio(t, ctx, 1, nil)
		require.NoError(t, r.SetTickRate(ctx, 50e6))
		require.NoError(t, r.Resolve(ctx))
		assert.Equal(t, 200e6, r.TickRate())
	})

	t.Run("device errors surface", func(t *testing.T) {
		clock := &fakeClock{err: errors.New("rpc down")}
		r, _ := newTestRadio(t, ctx, 1, nil)
		r.clock = clock
		require.NoError(t, r.SetMasterClockRate(ctx, 100e6))
		assert.ErrorContains(t, r.Resolve(ctx), "rpc down")
	})
}

func TestRadioChannelProps(t *testing.T) {
	ctx := context.Background()
	r, mem := newTestRadio(t, ctx, 2, nil)

	t.Run("gain is clamped and quantized", func(t *testing.T) {
		cases := []struct {
			in, want float64
			reg      uint32
		}{
			{in: 10.1, want: 10.0, reg: 40},
			{in: 10.2, want: 10.25, reg: 41},
			{in: -3, want: 0, reg: 0},
			{in: 100, want: MaxRadioGain, reg: 240},
		}
		for _, tc := range cases {
			require.NoError(t, node.SetProperty(ctx, r.Node, PropGain, tc.in, 1))
			require.NoError(t, r.Resolve(ctx))
			got, err := node.GetProperty[float64](r.Node, PropGain, 1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "gain %v", tc.in)
			assert.Equal(t, tc.reg, lastReg(t, mem, 1, regRadioGain), "gain register for %v", tc.in)
		}
	})

	t.Run("frequency is clamped and split over two registers", func(t *testing.T) {
		require.NoError(t, node.SetProperty(ctx, r.Node, PropFreq, 1e6, 0))
		require.NoError(t, r.Resolve(ctx))
		freq, err := node.GetProperty[float64](r.Node, PropFreq, 0)
		require.NoError(t, err)
		assert.Equal(t, MinRadioFreq, freq)
		assert.Equal(t, uint32(10e6), lastReg(t, mem, 0, regRadioFreqLo))

		require.NoError(t, node.SetProperty(ctx, r.Node, PropFreq, 5e9, 0))
		require.NoError(t, r.Resolve(ctx))
		assert.Equal(t, uint32(5e9-(1<<32)), lastReg(t, mem, 0, regRadioFreqLo))
		assert.Equal(t, uint32(1), lastReg(t, mem, 0, regRadioFreqLo+4))
	})

	t.Run("rssi refreshes on every pass", func(t *testing.T) {
		for i := 0; i < radioPowerSamples; i++ {
			mem.Set(portStride+regRadioPower+uint32(4*i), powerFullScale/10)
		}
		require.NoError(t, r.Resolve(ctx))
		rssi, err := node.GetProperty[float64](r.Node, PropRSSI, 1)
		require.NoError(t, err)
		assert.InDelta(t, -10.0, rssi, 1e-6)

		floor, err := node.GetProperty[float64](r.Node, PropRSSI, 0)
		require.NoError(t, err)
		assert.Equal(t, rssiFloor, floor)
	})

	t.Run("spp follows the output MTU", func(t *testing.T) {
		spp, err := node.GetProperty[int](r.Node, PropSamplesPerPacket, 0)
		require.NoError(t, err)
		assert.Equal(t, sppForMTU(DefaultMTU), spp)

		require.NoError(t, r.SetMTU(ctx, property.OutputEdgeSource(0), 1040))
		require.NoError(t, r.Resolve(ctx))
		spp, err = node.GetProperty[int](r.Node, PropSamplesPerPacket, 0)
		require.NoError(t, err)
		assert.Equal(t, 256, spp)
		assert.Equal(t, uint32(256), lastReg(t, mem, 0, regRadioSpp))

		require.NoError(t, node.SetProperty(ctx, r.Node, PropSamplesPerPacket, 100, 0))
		require.NoError(t, r.Resolve(ctx))
		spp, err = node.GetProperty[int](r.Node, PropSamplesPerPacket, 0)
		require.NoError(t, err)
		assert.Equal(t, 100, spp)
	})
}

func TestRadioStreamCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("immediate finite command", func(t *testing.T) {
		r, mem := newTestRadio(t, ctx, 1, nil)
		cmd := action.StreamCommand{Mode: action.NumSampsAndDone, NumSamps: 1000, StreamNow: true}
		require.NoError(t, r.ReceiveAction(ctx, property.OutputEdgeSource(0), action.NewStreamCmd(cmd)))

		assert.Equal(t, uint32(500), lastReg(t, mem, 0, regRadioNumWords))
		assert.Equal(t, uint32(action.NumSampsAndDone), lastReg(t, mem, 0, regRadioCmd))
		_, timed := mem.LastWrite(regRadioCmdTime)
		assert.False(t, timed)

		last, ok := r.LastStreamCommand(0)
		require.True(t, ok)
		assert.Equal(t, cmd.NumSamps, last.NumSamps)
	})

	t.Run("timed command", func(t *testing.T) {
		r, mem := newTestRadio(t, ctx, 1, nil)
		cmd := action.StreamCommand{Mode: action.StartContinuous, Time: &action.TimeSpec{FullSecs: 2}}
		require.NoError(t, r.ReceiveAction(ctx, property.OutputEdgeSource(0), action.NewStreamCmd(cmd)))

		assert.Equal(t, uint32(400e6), lastReg(t, mem, 0, regRadioCmdTime))
		assert.Equal(t, uint32(cmdTimedFlag), lastReg(t, mem, 0, regRadioCmd))
	})

	t.Run("command time is used when the command has none", func(t *testing.T) {
		r, mem := newTestRadio(t, ctx, 1, nil)
		r.SetCommandTime(action.TimeSpec{FullSecs: 1}, 0)
		defer r.ClearCommandTime(0)

		cmd := action.StreamCommand{Mode: action.StartContinuous}
		require.NoError(t, r.ReceiveAction(ctx, property.OutputEdgeSource(0), action.NewStreamCmd(cmd)))
		assert.Equal(t, uint32(200e6), lastReg(t, mem, 0, regRadioCmdTime))

		w, ok := mem.LastWrite(regRadioCmd)
		require.True(t, ok)
		require.NotNil(t, w.Time)
		assert.Equal(t, int64(1), w.Time.FullSecs)
	})

	t.Run("commands on TX ports are ignored", func(t *testing.T) {
		r, mem := newTestRadio(t, ctx, 1, nil)
		mem.Reset()
		cmd := action.StreamCommand{Mode: action.StartContinuous, StreamNow: true}
		require.NoError(t, r.ReceiveAction(ctx, property.InputEdgeSource(0), action.NewStreamCmd(cmd)))
		assert.Empty(t, mem.Writes())
		_, ok := r.LastStreamCommand(0)
		assert.False(t, ok)
	})
}
