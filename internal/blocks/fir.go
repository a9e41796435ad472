package blocks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
	"github.com/vk/rfnocgo/internal/rfnocerr"
	"gonum.org/v1/gonum/floats"
)

const (
	PropCoeffs = "coeffs"

	DefaultMaxTaps = 41
)

const (
	regFIRNumTaps uint32 = 0x00
	regFIRCoeffs  uint32 = 0x04
	regFIRLoad    uint32 = 0x08
)

// FIR filters each channel with a set of taps. Coefficients are stored as
// a comma-separated list and normalised so their magnitudes sum to one.
type FIR struct {
	*Core
	maxTaps int
}

// ParseCoeffs reads a comma-separated list of taps.
func ParseCoeffs(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid coefficient %q", rfnocerr.ErrConfiguration, f)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatCoeffs is the inverse of ParseCoeffs.
func FormatCoeffs(taps []float64) string {
	parts := make([]string, len(taps))
	for i, t := range taps {
		parts[i] = strconv.FormatFloat(t, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// NormalizeCoeffs scales taps so the sum of their magnitudes is one. An
// all-zero set is returned unchanged.
func NormalizeCoeffs(taps []float64) []float64 {
	out := append([]float64(nil), taps...)
	if sum := floats.Norm(out, 1); sum > 0 {
		floats.Scale(1/sum, out)
	}
	return out
}

// NewFIR builds a filter with maxTaps taps per channel. A default single
// unit tap passes samples unchanged.
func NewFIR(a Args, channels, maxTaps int) *FIR {
	if channels <= 0 {
		channels = 1
	}
	if maxTaps <= 0 {
		maxTaps = DefaultMaxTaps
	}
	a.NumIn, a.NumOut = channels, channels
	f := &FIR{Core: NewCore(a), maxTaps: maxTaps}
	for ch := 0; ch < channels; ch++ {
		coeffs := property.New(PropCoeffs, "1", property.UserSource(ch))
		f.RegisterProperty(coeffs, func(context.Context) error {
			return f.loadCoeffs(ch, coeffs.Get())
		})
		f.AddPropertyResolver([]property.Prop{coeffs}, []property.Prop{coeffs}, func(context.Context) error {
			taps, err := ParseCoeffs(coeffs.Get())
			if err != nil {
				return err
			}
			if len(taps) == 0 {
				return fmt.Errorf("%w: filter needs at least one coefficient", rfnocerr.ErrConfiguration)
			}
			if len(taps) > f.maxTaps {
				return fmt.Errorf("%w: %d coefficients exceed the maximum of %d", rfnocerr.ErrConfiguration, len(taps), f.maxTaps)
			}
			return coeffs.Set(FormatCoeffs(NormalizeCoeffs(taps)))
		})
	}
	f.SetPropForwardingPolicy(node.OneToOne, "")
	f.SetActionForwardingPolicy(node.OneToOne, "")
	_ = f.SetMTUForwardingPolicy(node.OneToOne)
	return f
}

// loadCoeffs streams the taps into the coefficient register as Q1.15 words
// and strobes the reload.
func (f *FIR) loadCoeffs(ch int, s string) error {
	taps, err := ParseCoeffs(s)
	if err != nil {
		return err
	}
	if err := f.poke(ch, regFIRNumTaps, uint32(len(taps))); err != nil {
		return err
	}
	for _, t := range taps {
		q := clampInt16(t * 32768)
		if err := f.poke(ch, regFIRCoeffs, uint32(uint16(q))); err != nil {
			return err
		}
	}
	return f.poke(ch, regFIRLoad, 1)
}

func (f *FIR) MaxTaps() int { return f.maxTaps }

// Coeffs returns the normalised taps of ch.
func (f *FIR) Coeffs(ch int) ([]float64, error) {
	s, err := node.GetProperty[string](f.Node, PropCoeffs, ch)
	if err != nil {
		return nil, err
	}
	return ParseCoeffs(s)
}

func (f *FIR) SetCoeffs(ctx context.Context, taps []float64, ch int) error {
	return node.SetProperty(ctx, f.Node, PropCoeffs, FormatCoeffs(taps), ch)
}
