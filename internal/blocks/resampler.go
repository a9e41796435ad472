package blocks

import (
	"context"
	"math"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	PropDecim   = "decim"
	PropInterp  = "interp"
	PropScaling = "scaling"
	PropType    = "type"

	MaxRateFactor = 512
	// IOTypeSC16 is the only item format the rate changers accept.
	IOTypeSC16 = "sc16"

	// rateTolerance is how close two rates must be to count as equal, in Hz.
	rateTolerance = 1e-3
)

const (
	regResampFactor  uint32 = 0x00
	regResampPhase   uint32 = 0x04
	regResampScaling uint32 = 0x08

	scalingFixedPoint = 1 << 15
	maxScalingReg     = 0x3FFFF
)

// Direction tells a Resampler whether it lowers or raises the rate.
type Direction int

const (
	Decimate Direction = iota
	Interpolate
)

// Resampler is the DDC (Decimate) and DUC (Interpolate) block. Each channel
// has a rate factor, a frequency shift and a scaling, and a sample rate on
// both edges.
type Resampler struct {
	*Core
	dir       Direction
	factorKey string

	factor  []*property.Property[int]
	freq    []*property.Property[float64]
	scaling []*property.Property[float64]
	rateIn  []*property.Property[float64]
	rateOut []*property.Property[float64]
}

// ResamplerArgs configures a Resampler.
type ResamplerArgs struct {
	Args
	Channels  int
	Direction Direction
}

// CoerceRateFactor rounds a requested factor to 1 or an even number no
// larger than MaxRateFactor.
func CoerceRateFactor(requested float64) int {
	d := int(math.Round(requested))
	if d <= 1 {
		return 1
	}
	return min(d-d%2, MaxRateFactor)
}

func ratesEqual(a, b float64) bool {
	return scalar.EqualWithinAbs(a, b, rateTolerance)
}

// NewDDC builds a decimating resampler.
func NewDDC(a Args, channels int) *Resampler {
	return NewResampler(ResamplerArgs{Args: a, Channels: channels, Direction: Decimate})
}

// NewDUC builds an interpolating resampler.
func NewDUC(a Args, channels int) *Resampler {
	return NewResampler(ResamplerArgs{Args: a, Channels: channels, Direction: Interpolate})
}

func NewResampler(a ResamplerArgs) *Resampler {
	if a.Channels <= 0 {
		a.Channels = 1
	}
	a.NumIn, a.NumOut = a.Channels, a.Channels
	r := &Resampler{Core: NewCore(a.Args), dir: a.Direction, factorKey: PropDecim}
	if a.Direction == Interpolate {
		r.factorKey = PropInterp
	}
	for ch := 0; ch < a.Channels; ch++ {
		r.addChannel(ch)
	}

	r.RegisterActionHandler(action.KeyStreamCmd, r.handleStreamCmd)
	_ = r.SetMTUForwardingPolicy(node.OneToOne)
	return r
}

// outFrom, inFrom and factorFrom encode the rate relation of the direction.
func (r *Resampler) outFrom(in float64, f int) float64 {
	if r.dir == Interpolate {
		return in * float64(f)
	}
	return in / float64(f)
}

func (r *Resampler) inFrom(out float64, f int) float64 {
	if r.dir == Interpolate {
		return out / float64(f)
	}
	return out * float64(f)
}

func (r *Resampler) factorFrom(in, out float64) int {
	if r.dir == Interpolate {
		return CoerceRateFactor(out / in)
	}
	return CoerceRateFactor(in / out)
}

func (r *Resampler) addChannel(ch int) {
	user := property.UserSource(ch)
	factor := property.New(r.factorKey, 1, user)
	freq := property.New(PropFreq, 0.0, user)
	scaling := property.New(PropScaling, 1.0, user)
	ioType := property.New(PropType, IOTypeSC16, user)
	rateIn := property.New(PropSampRate, DefaultSampRate, property.InputEdgeSource(ch))
	rateOut := property.New(PropSampRate, r.outFrom(DefaultSampRate, 1), property.OutputEdgeSource(ch))

	program := func(context.Context) error { return r.program(ch) }
	r.RegisterProperty(factor, program)
	r.RegisterProperty(freq, program)
	r.RegisterProperty(scaling, program)
	r.RegisterProperty(ioType)
	r.RegisterProperty(rateIn, program)
	r.RegisterProperty(rateOut)

	r.AddPropertyResolver([]property.Prop{factor}, []property.Prop{factor, rateOut, rateIn}, func(context.Context) error {
		if err := factor.Set(CoerceRateFactor(float64(factor.Get()))); err != nil {
			return err
		}
		// The rate on the radio side of the block stays put.
		keepIn := rateIn.IsValid() && (r.dir == Decimate || !rateOut.IsValid())
		switch {
		case keepIn:
			return rateOut.Set(r.outFrom(rateIn.Get(), factor.Get()))
		case rateOut.IsValid():
			return rateIn.Set(r.inFrom(rateOut.Get(), factor.Get()))
		}
		return nil
	})

	// A new input rate keeps the output rate if the factor allows it and
	// otherwise moves the output rate to match the coerced factor.
	r.AddPropertyResolver([]property.Prop{rateIn}, []property.Prop{factor, rateOut}, func(context.Context) error {
		if !rateIn.IsValid() {
			return nil
		}
		if rateOut.IsValid() {
			if err := factor.Set(r.factorFrom(rateIn.Get(), rateOut.Get())); err != nil {
				return err
			}
		}
		out := r.outFrom(rateIn.Get(), factor.Get())
		if ratesEqual(out, rateOut.Get()) {
			out = rateOut.Get()
		}
		return rateOut.Set(out)
	})

	r.AddPropertyResolver([]property.Prop{rateOut}, []property.Prop{factor, rateIn}, func(context.Context) error {
		if !rateOut.IsValid() {
			return nil
		}
		if rateIn.IsValid() {
			if err := factor.Set(r.factorFrom(rateIn.Get(), rateOut.Get())); err != nil {
				return err
			}
		}
		if !factor.IsDirty() {
			return nil
		}
		in := r.inFrom(rateOut.Get(), factor.Get())
		if rateIn.IsValid() && ratesEqual(in, rateIn.Get()) {
			in = rateIn.Get()
		}
		return rateIn.Set(in)
	})

	r.AddPropertyResolver([]property.Prop{freq, rateIn}, []property.Prop{freq}, func(context.Context) error {
		if !rateIn.IsValid() {
			return nil
		}
		nyquist := rateIn.Get() / 2
		return freq.Set(math.Min(math.Max(freq.Get(), -nyquist), nyquist))
	})

	r.AddPropertyResolver([]property.Prop{scaling}, []property.Prop{scaling}, func(context.Context) error {
		return scaling.Set(math.Min(math.Max(scaling.Get(), 0), float64(maxScalingReg)/scalingFixedPoint))
	})

	r.AddPropertyResolver([]property.Prop{ioType}, []property.Prop{ioType}, func(context.Context) error {
		return ioType.Set(IOTypeSC16)
	})

	r.factor = append(r.factor, factor)
	r.freq = append(r.freq, freq)
	r.scaling = append(r.scaling, scaling)
	r.rateIn = append(r.rateIn, rateIn)
	r.rateOut = append(r.rateOut, rateOut)
}

// program writes the channel registers. It runs from clean callbacks, so the
// property values are settled.
func (r *Resampler) program(ch int) error {
	if err := r.poke(ch, regResampFactor, uint32(r.factor[ch].Get())); err != nil {
		return err
	}
	if err := r.poke(ch, regResampPhase, uint32(PhaseIncrement(r.freq[ch].Get(), r.rateIn[ch].Get()))); err != nil {
		return err
	}
	scaling := uint32(math.Round(r.scaling[ch].Get() * scalingFixedPoint))
	return r.poke(ch, regResampScaling, min(scaling, maxScalingReg))
}

// PhaseIncrement converts a frequency shift into the 32-bit phase step of a
// numerically controlled oscillator running at rate.
func PhaseIncrement(freq, rate float64) int32 {
	if rate <= 0 {
		return 0
	}
	inc := math.Round(freq / rate * (1 << 32))
	return int32(math.Min(math.Max(inc, math.MinInt32), math.MaxInt32))
}

// handleStreamCmd rescales sample counts to the rate on the far side of the
// block and sends the command on.
func (r *Resampler) handleStreamCmd(ctx context.Context, src property.SourceInfo, a *action.Info) error {
	if !src.Type.IsEdge() || a.StreamCmd == nil {
		return nil
	}
	ch := src.Instance
	fwd := a.Clone()
	cmd := fwd.StreamCmd
	if cmd.Mode == action.NumSampsAndDone || cmd.Mode == action.NumSampsAndMore {
		f := uint64(r.factor[ch].Get())
		// Counts grow towards the fast side of the block.
		towardsInput := src.Type == property.OutputEdge
		if towardsInput == (r.dir == Decimate) {
			cmd.NumSamps *= f
		} else {
			cmd.NumSamps /= f
		}
		logger(ctx, r.Node).Debug("Forwarding num_samps stream command.", "num_samps", cmd.NumSamps)
	}
	return r.PostAction(ctx, src.Inverted(), fwd)
}

// Factor returns the decimation or interpolation of ch.
func (r *Resampler) Factor(ch int) (int, error) {
	return node.GetProperty[int](r.Node, r.factorKey, ch)
}

func (r *Resampler) SetFactor(ctx context.Context, factor, ch int) error {
	return node.SetProperty(ctx, r.Node, r.factorKey, factor, ch)
}

// SetOutputRate asks for a new output rate. The factor is recomputed from
// the input rate and the output rate coerced to match.
func (r *Resampler) SetOutputRate(ctx context.Context, rate float64, ch int) error {
	return node.SetPropertyAt(ctx, r.Node, PropSampRate, rate, property.OutputEdgeSource(ch))
}

func (r *Resampler) SetInputRate(ctx context.Context, rate float64, ch int) error {
	return node.SetPropertyAt(ctx, r.Node, PropSampRate, rate, property.InputEdgeSource(ch))
}

func (r *Resampler) OutputRate(ch int) (float64, error) {
	return node.GetPropertyAt[float64](r.Node, PropSampRate, property.OutputEdgeSource(ch))
}

func (r *Resampler) InputRate(ch int) (float64, error) {
	return node.GetPropertyAt[float64](r.Node, PropSampRate, property.InputEdgeSource(ch))
}

func (r *Resampler) SetFreq(ctx context.Context, freq float64, ch int) error {
	return node.SetProperty(ctx, r.Node, PropFreq, freq, ch)
}
