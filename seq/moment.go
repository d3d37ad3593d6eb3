package seq

import (
	"fmt"
	"math"
)

// GradientMoment numerically integrates g(t)·tⁿ over [t0, t1] with the
// trapezoid rule on the model's own waveform, n being the moment
// order. The quadrature grid uses the given step in seconds; a step of
// 0 or less falls back to the gradient raster.
func (s *Sequence) GradientMoment(ch Channel, order int, t0, t1, step float64) (float64, error) {
	if !ch.valid() {
		return 0, unknownChannelf(ch)
	}
	if order < 0 {
		return 0, fmt.Errorf("negative moment order %d", order)
	}
	if err := s.checkInterval(t0, t1); err != nil {
		return 0, err
	}
	if t0 == t1 {
		return 0, nil
	}
	if step <= 0 {
		step = rasterSec(s.defs.Rasters.Gradient)
	}

	f := func(t float64) float64 {
		v := s.gradientAt(ch, t)
		if order > 0 && v != 0 {
			v *= math.Pow(t, float64(order))
		}
		return v
	}

	var sum float64
	a, fa := t0, f(t0)
	for a < t1 {
		b := a + step
		if b > t1 {
			b = t1
		}
		fb := f(b)
		sum += (fa + fb) / 2 * (b - a)
		a, fa = b, fb
	}
	return sum, nil
}

// Integrate computes the exact zeroth moments over [t0, t1]: the
// analytic integral of each gradient axis and the accumulated RF
// rotation, reduced to a flip angle and phase. Sampled waveforms count
// each sample as constant over its tick.
func (s *Sequence) Integrate(t0, t1 float64) (Moment, error) {
	if err := s.checkInterval(t0, t1); err != nil {
		return Moment{}, err
	}

	sp := relaxedSpin()
	var g GradientMoments

	if t0 < t1 && len(s.blocks) > 0 {
		first := 0
		if t0 > 0 {
			first = s.blockAt(min(t0, s.durSec))
		}
		rfRaster := rasterSec(s.defs.Rasters.RF)
		gradRaster := rasterSec(s.defs.Rasters.Gradient)
		for i := first; i < len(s.blocks); i++ {
			blk := &s.blocks[i]
			if blk.startSec >= t1 {
				break
			}
			if blk.rf != nil {
				sp = blk.rf.integrate(sp, blk.startSec, rfRaster, t0, t1)
			}
			for ch := ChannelX; ch <= ChannelZ; ch++ {
				gr := blk.grad[ch]
				if gr == nil {
					continue
				}
				v := gr.integrate(blk.startSec, gradRaster, t0, t1)
				switch ch {
				case ChannelX:
					g.X += v
				case ChannelY:
					g.Y += v
				case ChannelZ:
					g.Z += v
				}
			}
		}
	}

	return Moment{
		RF:       RFMoment{FlipAngle: sp.angle(), Phase: sp.phase()},
		Gradient: g,
	}, nil
}

// checkInterval validates an integration interval against the
// sequence span.
func (s *Sequence) checkInterval(t0, t1 float64) error {
	if err := s.checkTime(t0); err != nil {
		return err
	}
	if err := s.checkTime(t1); err != nil {
		return err
	}
	if t1 < t0 {
		return fmt.Errorf("%w: interval end %gs before start %gs", ErrOutOfRangeTime, t1, t0)
	}
	return nil
}

// integrate rotates the spin by each RF sample overlapping [t0, t1].
// Samples fully inside the interval contribute their whole tick;
// clamping only the edge samples keeps long integrals from
// accumulating rounding error.
func (p *rfPulse) integrate(sp spin, blockStart, raster float64, t0, t1 float64) spin {
	start := blockStart + nsToSec(p.delayNs)
	n := len(p.ampShape)
	for i := 0; i < n; i++ {
		lo, hi := tickSpan(p.timeShape, i, n)
		a := start + lo*raster
		b := start + hi*raster
		if b <= t0 {
			continue
		}
		if t1 <= a {
			break
		}
		dur := b - a
		if a < t0 || t1 < b {
			dur = math.Min(t1, b) - math.Max(t0, a)
		}
		phase := p.phase
		if p.phaseShape != nil {
			phase += p.phaseShape[i] * tau
		}
		sp = newRotation(p.amp*p.ampShape[i]*dur*tau, phase).apply(sp)
	}
	return sp
}

// integrate is the analytic integral of the gradient over [t0, t1].
func (g *gradPulse) integrate(blockStart, raster float64, t0, t1 float64) float64 {
	start := blockStart + nsToSec(g.delayNs)
	if g.trap {
		return g.amp * integrateTrap(t0-start, t1-start,
			nsToSec(g.riseNs), nsToSec(g.flatNs), nsToSec(g.fallNs))
	}

	var sum float64
	n := len(g.shape)
	for i := 0; i < n; i++ {
		lo, hi := tickSpan(g.timeShape, i, n)
		a := start + lo*raster
		b := start + hi*raster
		if b <= t0 {
			continue
		}
		if t1 <= a {
			break
		}
		dur := b - a
		if a < t0 || t1 < b {
			dur = math.Min(t1, b) - math.Max(t0, a)
		}
		sum += g.shape[i] * dur
	}
	return g.amp * sum
}

// tickSpan returns the tick interval sample i of n occupies: [i, i+1)
// on the regular raster, or between its explicit instant and the next
// when a time shape applies. The last sample always spans one tick.
func tickSpan(timeShape []float64, i, n int) (lo, hi float64) {
	if timeShape == nil {
		return float64(i), float64(i + 1)
	}
	lo = timeShape[i]
	if i+1 < n {
		return lo, timeShape[i+1]
	}
	return lo, lo + 1
}

// integrateTrap evaluates the unit trapezoid's antiderivative at both
// interval ends, clamped into the pulse span. Times are relative to
// the start of the ramp.
func integrateTrap(t0, t1, rise, flat, fall float64) float64 {
	total := rise + flat + fall
	lo := math.Min(math.Max(t0, 0), total)
	hi := math.Min(math.Max(t1, 0), total)
	if hi <= lo {
		return 0
	}
	integral := func(t float64) float64 {
		switch {
		case t <= rise:
			if rise == 0 {
				return 0
			}
			return 0.5 * t * t / rise
		case t <= rise+flat:
			return 0.5*rise + (t - rise)
		default:
			if fall == 0 {
				return 0.5*rise + flat
			}
			rev := total - t
			return 0.5*rise + flat + 0.5*(fall-rev*rev/fall)
		}
	}
	return integral(hi) - integral(lo)
}
