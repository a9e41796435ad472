package blocks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/graph"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/regs"
	"github.com/vk/rfnocgo/internal/streamer"
)

type rxChain struct {
	g        *graph.Manager
	radio    *Radio
	radioMem *regs.Memory
	ddc      *Resampler
	rx       *streamer.RxStreamer
	clock    *fakeClock
}

// newRxChain builds radio -> ddc -> rx streamer and commits it.
func newRxChain(t *testing.T, ctx context.Context) *rxChain {
	t.Helper()
	c := &rxChain{g: graph.New(), radioMem: regs.NewMemory(), clock: &fakeClock{}}
	c.radio = NewRadio(RadioArgs{Args: Args{ID: "0/Radio#0", Regs: c.radioMem}, Channels: 1, Clock: c.clock})
	c.ddc = NewDDC(Args{ID: "0/DDC#0"}, 1)
	c.rx = streamer.NewRxStreamer("RxStreamer#0", 8)
	for _, b := range []interface{ InitProps(context.Context) error }{c.radio, c.ddc, c.rx} {
		require.NoError(t, b.InitProps(ctx))
	}

	require.NoError(t, c.g.Connect(ctx, c.radio, c.ddc, graph.NewEdge(0, 0, graph.Static, true)))
	require.NoError(t, c.g.Connect(ctx, c.ddc, c.rx, graph.NewEdge(0, 0, graph.Dynamic, true)))
	require.NoError(t, c.g.Commit(ctx))
	return c
}

func (c *rxChain) rxRate(t *testing.T) float64 {
	t.Helper()
	rate, ok := c.rx.SampRate()
	require.True(t, ok)
	return rate
}

func TestRxChain(t *testing.T) {
	ctx := context.Background()

	t.Run("commit spreads the radio rate", func(t *testing.T) {
		c := newRxChain(t, ctx)
		assert.Equal(t, 200e6, c.rxRate(t))
		mtu, ok := c.rx.MTU()
		require.True(t, ok)
		assert.Equal(t, DefaultMTU, mtu)
	})

	t.Run("decimation reaches the streamer", func(t *testing.T) {
		c := newRxChain(t, ctx)
		require.NoError(t, c.ddc.SetFactor(ctx, 4, 0))
		assert.Equal(t, 50e6, c.rxRate(t))
	})

	t.Run("output rate request is coerced against the radio", func(t *testing.T) {
		c := newRxChain(t, ctx)
		require.NoError(t, c.ddc.SetOutputRate(ctx, 30e6, 0))

		f, err := c.ddc.Factor(0)
		require.NoError(t, err)
		assert.Equal(t, 6, f)
		in, out := rates(t, c.ddc)
		assert.Equal(t, 200e6, in)
		assert.InDelta(t, 200e6/6, out, 1)
		assert.InDelta(t, 200e6/6, c.rxRate(t), 1)
	})

	t.Run("clock change keeps the output rate", func(t *testing.T) {
		c := newRxChain(t, ctx)
		require.NoError(t, c.ddc.SetFactor(ctx, 4, 0))
		require.NoError(t, c.radio.SetMasterClockRate(ctx, 100e6))

		f, err := c.ddc.Factor(0)
		require.NoError(t, err)
		assert.Equal(t, 2, f)
		assert.Equal(t, 50e6, c.rxRate(t))
		assert.Equal(t, 100e6, c.ddc.TickRate())
		assert.Contains(t, c.clock.calls(), 100e6)
	})

	t.Run("smaller MTU shrinks radio packets", func(t *testing.T) {
		c := newRxChain(t, ctx)
		require.NoError(t, c.ddc.SetMTU(ctx, property.InputEdgeSource(0), 4096))

		mtu, ok := c.rx.MTU()
		require.True(t, ok)
		assert.Equal(t, uint64(4096), mtu)
		spp, err := node.GetProperty[int](c.radio.Node, PropSamplesPerPacket, 0)
		require.NoError(t, err)
		assert.Equal(t, sppForMTU(4096), spp)
	})

	t.Run("stream command is scaled by the decimation", func(t *testing.T) {
		c := newRxChain(t, ctx)
		require.NoError(t, c.ddc.SetFactor(ctx, 4, 0))

		cmd := action.StreamCommand{Mode: action.NumSampsAndDone, NumSamps: 1000, StreamNow: true}
		require.NoError(t, c.rx.IssueStreamCmd(ctx, cmd))

		last, ok := c.radio.LastStreamCommand(0)
		require.True(t, ok)
		assert.Equal(t, uint64(4000), last.NumSamps)
		assert.Equal(t, uint32(2000), lastReg(t, c.radioMem, 0, regRadioNumWords))
	})

	t.Run("overruns reach the streamer", func(t *testing.T) {
		c := newRxChain(t, ctx)
		require.NoError(t, c.radio.ReportOverrun(ctx, 0))

		ev, ok := c.rx.RecvAsyncMsg(ctx, time.Second)
		require.True(t, ok)
		assert.Equal(t, action.Overflow, ev.Code)
	})
}

func TestTxChain(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	tx := streamer.NewTxStreamer("TxStreamer#0", 4)
	duc := NewDUC(Args{ID: "0/DUC#0"}, 1)
	radio := NewRadio(RadioArgs{Args: Args{ID: "0/Radio#0"}, Channels: 1})
	for _, b := range []interface{ InitProps(context.Context) error }{tx, duc, radio} {
		require.NoError(t, b.InitProps(ctx))
	}
	require.NoError(t, g.Connect(ctx, tx, duc, graph.NewEdge(0, 0, graph.Dynamic, true)))
	require.NoError(t, g.Connect(ctx, duc, radio, graph.NewEdge(0, 0, graph.Static, true)))
	require.NoError(t, g.Commit(ctx))

	require.NoError(t, duc.SetFactor(ctx, 4, 0))
	rate, ok := tx.SampRate()
	require.True(t, ok)
	assert.Equal(t, 50e6, rate)

	require.NoError(t, radio.ReportUnderrun(ctx, 0))
	ev, ok := tx.RecvAsyncMsg(ctx, time.Second)
	require.True(t, ok)
	assert.Equal(t, action.Underflow, ev.Code)
}

func TestFIFOPassThrough(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	radio := NewRadio(RadioArgs{Args: Args{ID: "0/Radio#0"}, Channels: 1})
	mem := regs.NewMemory()
	fifo := NewFIFO(Args{ID: "0/FIFO#0", Regs: mem}, 1)
	rx := streamer.NewRxStreamer("RxStreamer#0", 4)
	for _, b := range []interface{ InitProps(context.Context) error }{radio, fifo, rx} {
		require.NoError(t, b.InitProps(ctx))
	}
	require.NoError(t, g.Connect(ctx, radio, fifo, graph.NewEdge(0, 0, graph.Static, true)))
	require.NoError(t, g.Connect(ctx, fifo, rx, graph.NewEdge(0, 0, graph.Dynamic, true)))
	require.NoError(t, g.Commit(ctx))

	rate, ok := rx.SampRate()
	require.True(t, ok)
	assert.Equal(t, 200e6, rate)

	t.Run("depth is a power of two", func(t *testing.T) {
		require.NoError(t, node.SetProperty(ctx, fifo.Node, PropDepth, 1000, 0))
		depth, err := fifo.Depth(0)
		require.NoError(t, err)
		assert.Equal(t, 1024, depth)

		require.NoError(t, node.SetProperty(ctx, fifo.Node, PropDepth, 3000, 0))
		depth, err = fifo.Depth(0)
		require.NoError(t, err)
		assert.Equal(t, 4096, depth)
		assert.Equal(t, uint32(4096), lastReg(t, mem, 0, regFIFODepth))
	})

	t.Run("actions pass through", func(t *testing.T) {
		cmd := action.StreamCommand{Mode: action.StartContinuous, StreamNow: true}
		require.NoError(t, rx.IssueStreamCmd(ctx, cmd))
		last, ok := radio.LastStreamCommand(0)
		require.True(t, ok)
		assert.Equal(t, action.StartContinuous, last.Mode)
	})
}

func TestCoerceDepth(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 3: 4, 1024: 1024, 1025: 2048, 1 << 25: MaxFIFODepth}
	for in, want := range cases {
		assert.Equal(t, want, CoerceDepth(in), "depth %d", in)
	}
}
