package blocks

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
	"gonum.org/v1/gonum/floats"
)

const (
	PropEnable        = "enable"
	PropWaveform      = "waveform"
	PropAmplitude     = "amplitude"
	PropConstantI     = "constant_i"
	PropConstantQ     = "constant_q"
	PropSinePhaseInc  = "sine_phase_increment"
	PropSineFrequency = "frequency"

	// cordicScale is the gain the sine generator's CORDIC adds.
	cordicScale = 1.164435344782938
)

const (
	regSiggenEnable    uint32 = 0x00
	regSiggenSpp       uint32 = 0x04
	regSiggenWaveform  uint32 = 0x08
	regSiggenGain      uint32 = 0x0C
	regSiggenConstant  uint32 = 0x10
	regSiggenPhaseInc  uint32 = 0x14
	regSiggenCartesian uint32 = 0x18
)

// Waveform selects what the signal generator emits.
type Waveform int

const (
	WaveformConstant Waveform = iota
	WaveformSine
	WaveformNoise
)

func (w Waveform) String() string {
	switch w {
	case WaveformConstant:
		return "CONSTANT"
	case WaveformSine:
		return "SINE_WAVE"
	case WaveformNoise:
		return "NOISE"
	default:
		return fmt.Sprintf("WAVEFORM(%d)", int(w))
	}
}

// SigGen is a source block with one generator per output port.
type SigGen struct {
	*Core
}

type siggenPort struct {
	enable    *property.Property[bool]
	waveform  *property.Property[int]
	amplitude *property.Property[float64]
	constI    *property.Property[float64]
	constQ    *property.Property[float64]
	phaseInc  *property.Property[float64]
	frequency *property.Property[float64]
	spp       *property.Property[int]
}

// clampInt16 rounds v to the nearest integer within the int16 range.
func clampInt16(v float64) int16 {
	return int16(math.Min(math.Max(math.Round(v), math.MinInt16), math.MaxInt16))
}

// NewSigGen builds a signal generator with outputs ports and no inputs.
func NewSigGen(a Args, outputs int) *SigGen {
	if outputs <= 0 {
		outputs = 1
	}
	a.NumIn, a.NumOut = 0, outputs
	s := &SigGen{Core: NewCore(a)}
	for port := 0; port < outputs; port++ {
		s.addPort(port)
	}
	s.SetPropForwardingPolicy(node.Drop, "")
	s.SetActionForwardingPolicy(node.Drop, "")
	return s
}

func (s *SigGen) addPort(port int) {
	user := property.UserSource(port)
	out := property.OutputEdgeSource(port)
	mtu := s.mtuProp(out)
	p := siggenPort{
		enable:    property.New(PropEnable, false, user),
		waveform:  property.New(PropWaveform, int(WaveformConstant), user),
		amplitude: property.New(PropAmplitude, 1.0, user),
		constI:    property.New(PropConstantI, 1.0, user),
		constQ:    property.New(PropConstantQ, 1.0, user),
		phaseInc:  property.New(PropSinePhaseInc, 1.0, user),
		frequency: property.New(PropSineFrequency, 0.0, user),
		spp:       property.New(PropSamplesPerPacket, sppForMTU(mtu.Get()), user),
	}
	ioType := property.New(PropType, IOTypeSC16, out)

	s.RegisterProperty(ioType)
	s.RegisterProperty(p.enable, func(context.Context) error {
		var v uint32
		if p.enable.Get() {
			v = 1
		}
		return s.poke(port, regSiggenEnable, v)
	})
	s.RegisterProperty(p.waveform, func(context.Context) error { return s.programWaveform(port, p) })
	s.RegisterProperty(p.amplitude, func(context.Context) error { return s.programWaveform(port, p) })
	s.RegisterProperty(p.constI, func(context.Context) error { return s.programConstant(port, p) })
	s.RegisterProperty(p.constQ, func(context.Context) error { return s.programConstant(port, p) })
	s.RegisterProperty(p.phaseInc, func(context.Context) error {
		scaled := clampInt16(p.phaseInc.Get() / math.Pi * 8192)
		return s.poke(port, regSiggenPhaseInc, uint32(uint16(scaled)))
	})
	s.RegisterProperty(p.frequency)
	s.RegisterProperty(p.spp, func(context.Context) error {
		return s.poke(port, regSiggenSpp, uint32(p.spp.Get()))
	})

	s.AddPropertyResolver([]property.Prop{p.waveform, p.amplitude}, []property.Prop{p.amplitude}, func(context.Context) error {
		w := Waveform(p.waveform.Get())
		if w < WaveformConstant || w > WaveformNoise {
			return fmt.Errorf("%w: waveform value must be in [%d, %d], not %d",
				rfnocerr.ErrConfiguration, WaveformConstant, WaveformNoise, w)
		}
		if a := p.amplitude.Get(); a < 0 || a > 1 {
			return fmt.Errorf("%w: amplitude value must be in [0.0, 1.0], not %g", rfnocerr.ErrConfiguration, a)
		}
		if w == WaveformConstant {
			return p.amplitude.Set(1.0)
		}
		return nil
	})

	s.AddPropertyResolver([]property.Prop{p.constI, p.constQ}, nil, func(context.Context) error {
		for _, c := range []float64{p.constI.Get(), p.constQ.Get()} {
			if c < -1 || c > 1 {
				return fmt.Errorf("%w: constant value %g must be in [-1.0, 1.0]", rfnocerr.ErrConfiguration, c)
			}
		}
		return nil
	})

	s.AddPropertyResolver([]property.Prop{p.phaseInc}, nil, func(context.Context) error {
		if v := p.phaseInc.Get(); v < -math.Pi || v > math.Pi {
			return fmt.Errorf("%w: phase increment %g must be in [-pi, pi]", rfnocerr.ErrConfiguration, v)
		}
		return nil
	})

	// A tone frequency is turned into a phase step at the block's clock.
	tick := s.tickProps[port]
	s.AddPropertyResolver([]property.Prop{p.frequency, tick}, []property.Prop{p.phaseInc}, func(context.Context) error {
		if p.frequency.Get() == 0 || tick.Get() <= 0 {
			return nil
		}
		inc := 2 * math.Pi * p.frequency.Get() / tick.Get()
		return p.phaseInc.Set(math.Min(math.Max(inc, -math.Pi), math.Pi))
	})

	s.AddPropertyResolver([]property.Prop{p.spp, mtu}, []property.Prop{p.spp}, func(ctx context.Context) error {
		spp := coerceSpp(p.spp.Get(), mtu.Get())
		if spp != p.spp.Get() {
			logger(ctx, s.Node).Warn("Coercing samples per packet to fit the MTU.", "requested", p.spp.Get(), "spp", spp)
		}
		return p.spp.Set(spp)
	})

	s.AddPropertyResolver([]property.Prop{ioType}, []property.Prop{ioType}, func(context.Context) error {
		return ioType.Set(IOTypeSC16)
	})
}

func (s *SigGen) programWaveform(port int, p siggenPort) error {
	w := Waveform(p.waveform.Get())
	if err := s.poke(port, regSiggenWaveform, uint32(w)); err != nil {
		return err
	}
	gain := 1.0
	switch w {
	case WaveformSine:
		x := clampInt16(p.amplitude.Get() / cordicScale * 32768)
		if err := s.poke(port, regSiggenCartesian, uint32(uint16(x))<<16); err != nil {
			return err
		}
	case WaveformNoise:
		gain = p.amplitude.Get()
	}
	return s.poke(port, regSiggenGain, uint32(uint16(clampInt16(gain*32768))))
}

func (s *SigGen) programConstant(port int, p siggenPort) error {
	iq := []float64{p.constI.Get(), p.constQ.Get()}
	floats.Scale(32768, iq)
	word := uint32(uint16(clampInt16(iq[0])))<<16 | uint32(uint16(clampInt16(iq[1])))
	return s.poke(port, regSiggenConstant, word)
}

func (s *SigGen) SetEnable(ctx context.Context, enable bool, port int) error {
	return node.SetProperty(ctx, s.Node, PropEnable, enable, port)
}

func (s *SigGen) SetWaveform(ctx context.Context, w Waveform, port int) error {
	return node.SetProperty(ctx, s.Node, PropWaveform, int(w), port)
}

func (s *SigGen) SetAmplitude(ctx context.Context, amplitude float64, port int) error {
	return node.SetProperty(ctx, s.Node, PropAmplitude, amplitude, port)
}

// SetConstant sets both halves of the constant output in one pass.
func (s *SigGen) SetConstant(ctx context.Context, i, q float64, port int) error {
	return s.SetProperties(ctx, fmt.Sprintf("%s=%g,%s=%g", PropConstantI, i, PropConstantQ, q), port)
}

func (s *SigGen) SetFrequency(ctx context.Context, freq float64, port int) error {
	return node.SetProperty(ctx, s.Node, PropSineFrequency, freq, port)
}

func (s *SigGen) SamplesPerPacket(port int) (int, error) {
	return node.GetProperty[int](s.Node, PropSamplesPerPacket, port)
}
