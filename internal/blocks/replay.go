package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
	"github.com/vk/rfnocgo/internal/streamer"
)

const (
	PropRecordOffset = "record_offset"
	PropRecordSize   = "record_size"
	PropPlayOffset   = "play_offset"
	PropPlaySize     = "play_size"
	PropPacketSize   = "packet_size"

	DefaultReplayMemSize uint64 = 1 << 31
	ReplayWordSize       uint64 = 8
	replayItemSize       uint64 = bytesPerSample
)

const (
	regReplayRecRestart  uint32 = 0x08
	regReplayRecBase     uint32 = 0x10
	regReplayRecSize     uint32 = 0x18
	regReplayRecFullness uint32 = 0x20
	regReplayPlayBase    uint32 = 0x28
	regReplayPlaySize    uint32 = 0x30
	regReplayNumWords    uint32 = 0x38
	regReplayCmdTime     uint32 = 0x40
	regReplayCmd         uint32 = 0x48
	regReplayWordsPerPkt uint32 = 0x4C
	regReplayItemSize    uint32 = 0x50

	playCmdStop       = 0
	playCmdFinite     = 1
	playCmdContinuous = 2
	playCmdTimedFlag  = 1 << 31
)

// ReplayArgs configures a Replay block. Ports applies to both sides.
type ReplayArgs struct {
	Args
	Ports   int
	MemSize uint64
}

// Replay records input samples into a memory buffer and plays them back on
// the output. Feeding the output back into the input needs a back edge.
type Replay struct {
	*Core
	memSize uint64
	records *streamer.AsyncQueue
}

func NewReplay(a ReplayArgs) *Replay {
	if a.Ports <= 0 {
		a.Ports = 1
	}
	if a.MemSize == 0 {
		a.MemSize = DefaultReplayMemSize
	}
	a.NumIn, a.NumOut = a.Ports, a.Ports
	r := &Replay{
		Core:    NewCore(a.Args),
		memSize: a.MemSize,
		records: streamer.NewAsyncQueue(0),
	}
	for port := 0; port < a.Ports; port++ {
		r.addInput(port)
		r.addOutput(port)
	}

	r.SetPropForwardingPolicy(node.Drop, "")
	r.SetActionForwardingPolicy(node.Drop, "")
	_ = r.SetMTUForwardingPolicy(node.Drop)
	r.RegisterActionHandler(action.KeyStreamCmd, func(ctx context.Context, src property.SourceInfo, a *action.Info) error {
		if src.Type != property.OutputEdge || a.StreamCmd == nil {
			logger(ctx, r.Node).Warn("Ignoring stream command that did not arrive on an output port.", "port", src.String())
			return nil
		}
		return r.issueStreamCmd(ctx, *a.StreamCmd, src.Instance)
	})
	r.RegisterActionHandler(action.KeyRxEvent, func(ctx context.Context, src property.SourceInfo, a *action.Info) error {
		if src.Type != property.InputEdge || a.Event == nil {
			return nil
		}
		if !r.records.Push(*a.Event) {
			logger(ctx, r.Node).Warn("Record event queue is full, dropping event.", "event", a.Event.String())
		}
		return nil
	})
	return r
}

// coerceItemSize makes an atomic item size a multiple of the memory word,
// capped by the MTU of the edge.
func coerceItemSize(ais, mtu uint64) uint64 {
	return min(lcm(max(ais, 1), ReplayWordSize), mtu)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uint64) uint64 {
	return a / gcd(a, b) * b
}

func (r *Replay) addInput(port int) {
	user := property.UserSource(port)
	offset := property.New(PropRecordOffset, uint64(0), user)
	size := property.New(PropRecordSize, r.memSize, user)
	writeBuffer := func(context.Context) error {
		if err := r.poke64(port, regReplayRecBase, offset.Get()); err != nil {
			return err
		}
		return r.poke64(port, regReplayRecSize, size.Get())
	}
	r.RegisterProperty(offset, writeBuffer)
	r.RegisterProperty(size, writeBuffer)

	edge := property.InputEdgeSource(port)
	ais := property.New(PropAtomicItemSize, ReplayWordSize, edge)
	mtu := r.mtuProp(edge)
	r.RegisterProperty(ais)
	r.AddPropertyResolver([]property.Prop{ais, mtu}, []property.Prop{ais}, func(context.Context) error {
		return ais.Set(coerceItemSize(ais.Get(), mtu.Get()))
	})
}

func (r *Replay) addOutput(port int) {
	user := property.UserSource(port)
	offset := property.New(PropPlayOffset, uint64(0), user)
	size := property.New(PropPlaySize, r.memSize, user)
	writeBuffer := func(context.Context) error {
		if err := r.poke64(port, regReplayPlayBase, offset.Get()); err != nil {
			return err
		}
		return r.poke64(port, regReplayPlaySize, size.Get())
	}
	r.RegisterProperty(offset, writeBuffer)
	r.RegisterProperty(size, writeBuffer)

	edge := property.OutputEdgeSource(port)
	mtu := r.mtuProp(edge)
	pkt := property.New(PropPacketSize, mtu.Get(), user)
	r.RegisterProperty(pkt, func(context.Context) error {
		words := (pkt.Get() - chdrHeaderBytes) / ReplayWordSize
		if err := r.poke(port, regReplayItemSize, uint32(replayItemSize)); err != nil {
			return err
		}
		return r.poke(port, regReplayWordsPerPkt, uint32(words))
	})
	r.AddPropertyResolver([]property.Prop{pkt, mtu}, []property.Prop{pkt}, func(context.Context) error {
		return pkt.Set(coercePacketSize(pkt.Get(), mtu.Get()))
	})

	ais := property.New(PropAtomicItemSize, ReplayWordSize, edge)
	r.RegisterProperty(ais)
	r.AddPropertyResolver([]property.Prop{ais, mtu}, []property.Prop{ais}, func(context.Context) error {
		return ais.Set(coerceItemSize(ais.Get(), mtu.Get()))
	})
}

// coercePacketSize caps a packet at the MTU and rounds its payload down to
// whole memory words. An empty payload falls back to the largest packet.
func coercePacketSize(pkt, mtu uint64) uint64 {
	pkt = min(pkt, mtu)
	if mtu <= chdrHeaderBytes {
		return mtu
	}
	maxPayload := (mtu - chdrHeaderBytes) / ReplayWordSize * ReplayWordSize
	if pkt <= chdrHeaderBytes {
		return maxPayload + chdrHeaderBytes
	}
	payload := (pkt - chdrHeaderBytes) / ReplayWordSize * ReplayWordSize
	if payload == 0 {
		payload = maxPayload
	}
	return payload + chdrHeaderBytes
}

func (r *Replay) checkPort(port int) error {
	if port < 0 || port >= r.NumOutputPorts() {
		return fmt.Errorf("%w: replay block %s has no port %d", rfnocerr.ErrUnknownPort, r.ID(), port)
	}
	return nil
}

// Record configures the record buffer of port and restarts recording.
func (r *Replay) Record(ctx context.Context, offset, size uint64, port int) error {
	if err := r.checkPort(port); err != nil {
		return err
	}
	if offset+size > r.memSize {
		return fmt.Errorf("%w: record buffer [%d, %d) goes out of bounds of %d bytes",
			rfnocerr.ErrConfiguration, offset, offset+size, r.memSize)
	}
	assignments := fmt.Sprintf("%s=%d,%s=%d", PropRecordOffset, offset, PropRecordSize, size)
	if err := r.SetProperties(ctx, assignments, port); err != nil {
		return err
	}
	return r.poke(port, regReplayRecRestart, 0)
}

// RecordFullness returns the number of bytes recorded on port so far.
func (r *Replay) RecordFullness(port int) (uint64, error) {
	lo, err := r.peek(port, regReplayRecFullness)
	if err != nil {
		return 0, err
	}
	hi, err := r.peek(port, regReplayRecFullness+4)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// RecordEvent pops an rx_event that reached the record side.
func (r *Replay) RecordEvent(ctx context.Context, timeout time.Duration) (action.AsyncEvent, bool) {
	return r.records.Pop(ctx, timeout)
}

// Play configures the play buffer of port and starts playback. A nil time
// plays immediately. With repeat the buffer loops until Stop.
func (r *Replay) Play(ctx context.Context, offset, size uint64, port int, at *action.TimeSpec, repeat bool) error {
	if err := r.checkPort(port); err != nil {
		return err
	}
	assignments := fmt.Sprintf("%s=%d,%s=%d", PropPlayOffset, offset, PropPlaySize, size)
	if err := r.SetProperties(ctx, assignments, port); err != nil {
		return err
	}
	cmd := action.StreamCommand{Mode: action.NumSampsAndDone, NumSamps: size / replayItemSize, StreamNow: at == nil, Time: at}
	if repeat {
		cmd.Mode = action.StartContinuous
	}
	return r.issueStreamCmd(ctx, cmd, port)
}

func (r *Replay) Stop(ctx context.Context, port int) error {
	if err := r.checkPort(port); err != nil {
		return err
	}
	return r.issueStreamCmd(ctx, action.StreamCommand{Mode: action.StopContinuous, StreamNow: true}, port)
}

func (r *Replay) validatePlayBuffer(port int) error {
	offset, err := node.GetProperty[uint64](r.Node, PropPlayOffset, port)
	if err != nil {
		return err
	}
	size, err := node.GetProperty[uint64](r.Node, PropPlaySize, port)
	if err != nil {
		return err
	}
	if size%replayItemSize != 0 {
		return fmt.Errorf("%w: play size %d is not a multiple of the item size %d", rfnocerr.ErrConfiguration, size, replayItemSize)
	}
	if offset+size > r.memSize {
		return fmt.Errorf("%w: play buffer [%d, %d) goes out of bounds of %d bytes",
			rfnocerr.ErrConfiguration, offset, offset+size, r.memSize)
	}
	return nil
}

func (r *Replay) issueStreamCmd(ctx context.Context, cmd action.StreamCommand, port int) error {
	if err := r.validatePlayBuffer(port); err != nil {
		return err
	}

	var word uint32
	switch cmd.Mode {
	case action.StopContinuous:
		word = playCmdStop
	case action.NumSampsAndDone, action.NumSampsAndMore:
		word = playCmdFinite
		numWords := cmd.NumSamps * replayItemSize / ReplayWordSize
		if err := r.poke64(port, regReplayNumWords, numWords); err != nil {
			return err
		}
	case action.StartContinuous:
		word = playCmdContinuous
	default:
		return fmt.Errorf("%w: invalid stream mode %s", rfnocerr.ErrConfiguration, cmd.Mode)
	}

	if !cmd.StreamNow {
		word |= playCmdTimedFlag
		var secs float64
		if cmd.Time != nil {
			secs = cmd.Time.Seconds()
		}
		if err := r.poke64(port, regReplayCmdTime, uint64(secs*r.TickRate())); err != nil {
			return err
		}
	}
	logger(ctx, r.Node).Debug("Issuing play command.", "port", port, "command", cmd.String())
	return r.poke(port, regReplayCmd, word)
}
