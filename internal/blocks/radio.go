package blocks

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"gonum.org/v1/gonum/floats"
)

const (
	PropMasterClockRate = "master_clock_rate"
	PropFreq            = "freq"
	PropGain            = "gain"
	PropRSSI            = "rssi"

	DefaultRadioFreq = 1e9
	MinRadioFreq     = 10e6
	MaxRadioFreq     = 6e9
	MaxRadioGain     = 60.0
	gainStep         = 0.25
	// rssiFloor is reported when the power registers read zero.
	rssiFloor = -150.0
)

// Radio register map, relative to the channel bank.
const (
	regRadioFreqLo   uint32 = 0x00
	regRadioGain     uint32 = 0x08
	regRadioSpp      uint32 = 0x0C
	regRadioPower    uint32 = 0x10 // four consecutive power samples
	regRadioCmd      uint32 = 0x20
	regRadioNumWords uint32 = 0x24
	regRadioCmdTime  uint32 = 0x2C

	radioPowerSamples = 4
	powerFullScale    = 1 << 30
	itemWordBytes     = 8
	cmdTimedFlag      = 1 << 8
)

// ClockController sets the master clock rate on the device firmware and
// returns the rate actually applied. *mpmrpc.Client implements it.
type ClockController interface {
	SetMasterClockRate(ctx context.Context, rate float64) (float64, error)
}

// RadioArgs configures a Radio. Channels is used for both the number of
// inputs (TX) and outputs (RX).
type RadioArgs struct {
	Args
	Channels int
	// Clock is optional. When set, clock rate changes are pushed to it.
	Clock ClockController
}

// Radio is the terminal block at the hardware end of every chain. It runs at
// the master clock rate on all ports and owns the timebase.
type Radio struct {
	*Core
	clock ClockController

	mcr       *property.Property[float64]
	sampRates []*property.Property[float64]
	freq      []*property.Property[float64]
	gain      []*property.Property[float64]
	rssi      []*property.Property[float64]
	spp       []*property.Property[int]

	mu          sync.Mutex
	lastCommand map[int]action.StreamCommand
}

// CoerceMasterClockRate maps a requested rate onto the two supported ones.
func CoerceMasterClockRate(rate float64) float64 {
	if rate > 150e6 {
		return 200e6
	}
	return 100e6
}

// NewRadio builds a radio with a.Channels channels.
func NewRadio(a RadioArgs) *Radio {
	if a.Channels <= 0 {
		a.Channels = 1
	}
	if a.TickRate == 0 {
		a.TickRate = DefaultSampRate
	}
	a.NumIn, a.NumOut = a.Channels, a.Channels
	r := &Radio{
		Core:        NewCore(a.Args),
		clock:       a.Clock,
		lastCommand: make(map[int]action.StreamCommand),
	}
	r.tickConfigurable = false

	r.mcr = property.New(PropMasterClockRate, CoerceMasterClockRate(r.TickRate()), property.UserSource(0))
	r.RegisterProperty(r.mcr, r.applyClockRate)

	for _, src := range edgeSources(a.Channels, a.Channels) {
		sr := property.New(PropSampRate, r.mcr.Get(), src)
		r.RegisterProperty(sr)
		r.sampRates = append(r.sampRates, sr)
	}

	mcrOutputs := []property.Prop{r.mcr}
	for _, sr := range r.sampRates {
		mcrOutputs = append(mcrOutputs, sr)
	}
	mcrOutputs = append(mcrOutputs, r.tickPropRefs()...)
	r.AddPropertyResolver([]property.Prop{r.mcr}, mcrOutputs, func(context.Context) error {
		rate := CoerceMasterClockRate(r.mcr.Get())
		if err := r.mcr.Set(rate); err != nil {
			return err
		}
		for _, sr := range r.sampRates {
			if err := sr.Set(rate); err != nil {
				return err
			}
		}
		return r.setTickRateLocked(rate)
	})
	// The radio cannot follow a rate requested by a neighbour; it pins every
	// edge back to the clock rate.
	for _, sr := range r.sampRates {
		r.AddPropertyResolver([]property.Prop{sr}, []property.Prop{sr}, func(context.Context) error {
			return sr.Set(r.mcr.Get())
		})
	}

	for ch := 0; ch < a.Channels; ch++ {
		r.addChannel(ch)
	}

	r.SetPropForwardingPolicy(node.Drop, "")
	r.SetActionForwardingPolicy(node.Drop, "")
	_ = r.SetMTUForwardingPolicy(node.Drop)
	r.RegisterActionHandler(action.KeyStreamCmd, r.handleStreamCmd)
	return r
}

func (r *Radio) addChannel(ch int) {
	user := property.UserSource(ch)

	freq := property.New(PropFreq, DefaultRadioFreq, user)
	r.RegisterProperty(freq, func(context.Context) error {
		return r.poke64(ch, regRadioFreqLo, uint64(freq.Get()))
	})
	r.AddPropertyResolver([]property.Prop{freq}, []property.Prop{freq}, func(context.Context) error {
		return freq.Set(math.Min(math.Max(freq.Get(), MinRadioFreq), MaxRadioFreq))
	})

	gain := property.New(PropGain, 0.0, user)
	r.RegisterProperty(gain, func(context.Context) error {
		return r.poke(ch, regRadioGain, uint32(gain.Get()/gainStep))
	})
	r.AddPropertyResolver([]property.Prop{gain}, []property.Prop{gain}, func(context.Context) error {
		g := math.Min(math.Max(gain.Get(), 0), MaxRadioGain)
		return gain.Set(math.Round(g/gainStep) * gainStep)
	})

	rssi := property.New(PropRSSI, rssiFloor, user)
	r.RegisterProperty(rssi)
	r.AddPropertyResolver([]property.Prop{r.AlwaysDirty()}, []property.Prop{rssi}, func(context.Context) error {
		v, err := r.readRSSI(ch)
		if err != nil {
			return err
		}
		return rssi.Set(v)
	})

	out := property.OutputEdgeSource(ch)
	mtu := r.mtuProp(out)
	spp := property.New(PropSamplesPerPacket, sppForMTU(mtu.Get()), user)
	r.RegisterProperty(spp, func(context.Context) error {
		return r.poke(ch, regRadioSpp, uint32(spp.Get()))
	})
	r.AddPropertyResolver([]property.Prop{spp, mtu}, []property.Prop{spp}, func(context.Context) error {
		return spp.Set(coerceSpp(spp.Get(), mtu.Get()))
	})

	r.freq = append(r.freq, freq)
	r.gain = append(r.gain, gain)
	r.rssi = append(r.rssi, rssi)
	r.spp = append(r.spp, spp)
}

// sppForMTU is the largest number of samples a packet can carry.
func sppForMTU(mtu uint64) int {
	if mtu <= chdrHeaderBytes {
		return 0
	}
	return int((mtu - chdrHeaderBytes) / bytesPerSample)
}

func coerceSpp(spp int, mtu uint64) int {
	limit := sppForMTU(mtu)
	if spp <= 0 || spp > limit {
		return limit
	}
	return spp
}

// readRSSI averages the power samples of ch and converts them to dB full
// scale.
func (r *Radio) readRSSI(ch int) (float64, error) {
	samples := make([]float64, radioPowerSamples)
	for i := range samples {
		v, err := r.peek(ch, regRadioPower+uint32(4*i))
		if err != nil {
			return 0, fmt.Errorf("reading power register of channel %d: %w", ch, err)
		}
		samples[i] = float64(v) / powerFullScale
	}
	mean := floats.Sum(samples) / float64(len(samples))
	if mean <= 0 {
		return rssiFloor, nil
	}
	return math.Max(10*math.Log10(mean), rssiFloor), nil
}

func (r *Radio) applyClockRate(ctx context.Context) error {
	if r.clock == nil {
		return nil
	}
	requested := r.mcr.Get()
	actual, err := r.clock.SetMasterClockRate(ctx, requested)
	if err != nil {
		return fmt.Errorf("setting master clock rate on device: %w", err)
	}
	if actual != requested {
		logger(ctx, r.Node).Warn("Device applied a different master clock rate.",
			"requested_mhz", requested/1e6, "actual_mhz", actual/1e6)
	}
	return nil
}

func (r *Radio) handleStreamCmd(ctx context.Context, src property.SourceInfo, a *action.Info) error {
	log := logger(ctx, r.Node)
	if src.Type != property.OutputEdge || a.StreamCmd == nil {
		log.Warn("Ignoring stream command that did not arrive on an RX port.", "port", src.String())
		return nil
	}
	ch := src.Instance
	cmd := *a.StreamCmd

	flags := uint32(cmd.Mode)
	var when *action.TimeSpec
	if !cmd.StreamNow {
		flags |= cmdTimedFlag
		when = cmd.Time
		if when == nil {
			when = r.CommandTime(ch)
		}
	}
	numWords := cmd.NumSamps * bytesPerSample / itemWordBytes
	if err := r.poke64(ch, regRadioNumWords, numWords); err != nil {
		return err
	}
	if when != nil {
		ticks := uint64(when.Seconds() * r.TickRate())
		if err := r.poke64(ch, regRadioCmdTime, ticks); err != nil {
			return err
		}
	}
	if err := r.poke(ch, regRadioCmd, flags); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastCommand[ch] = cmd
	r.mu.Unlock()
	log.Info("📡 Stream command issued.", "channel", ch, "command", cmd.String())
	return nil
}

// LastStreamCommand returns the most recent command received on ch.
func (r *Radio) LastStreamCommand(ch int) (action.StreamCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.lastCommand[ch]
	return cmd, ok
}

// ReportOverrun posts an overflow event downstream of RX channel ch.
func (r *Radio) ReportOverrun(ctx context.Context, ch int) error {
	ev := action.AsyncEvent{Code: action.Overflow, Channel: ch, Time: r.CommandTime(ch)}
	return r.PostAction(ctx, property.OutputEdgeSource(ch), action.NewAsyncEvent(action.KeyRxEvent, ev))
}

// ReportUnderrun posts an underflow event upstream of TX channel ch.
func (r *Radio) ReportUnderrun(ctx context.Context, ch int) error {
	ev := action.AsyncEvent{Code: action.Underflow, Channel: ch, Time: r.CommandTime(ch)}
	return r.PostAction(ctx, property.InputEdgeSource(ch), action.NewAsyncEvent(action.KeyTxEvent, ev))
}

// MasterClockRate returns the current clock rate.
func (r *Radio) MasterClockRate() (float64, error) {
	return node.GetProperty[float64](r.Node, PropMasterClockRate, 0)
}

// SetMasterClockRate requests a new clock rate. The value is coerced to a
// supported rate.
func (r *Radio) SetMasterClockRate(ctx context.Context, rate float64) error {
	return node.SetProperty(ctx, r.Node, PropMasterClockRate, rate, 0)
}
