package seq

import (
	"math"
	"sort"
	"time"
)

// Sample returns the complete instantaneous state of the sequence at
// time t (seconds). Outside every event the state is zero; inside, RF
// and gradient values are linearly interpolated between the decoded
// shape samples and trapezoids are evaluated analytically.
func (s *Sequence) Sample(t float64) (Sample, error) {
	if err := s.checkTime(t); err != nil {
		return Sample{}, err
	}
	smp := Sample{Time: t}
	if len(s.blocks) == 0 {
		return smp, nil
	}

	blk := &s.blocks[s.blockAt(t)]
	tRel := t - blk.startSec

	if blk.rf != nil {
		smp.RF = blk.rf.sampleAt(tRel-nsToSec(blk.rf.delayNs), rasterSec(s.defs.Rasters.RF))
	}
	raster := rasterSec(s.defs.Rasters.Gradient)
	for ch := ChannelX; ch <= ChannelZ; ch++ {
		if g := blk.grad[ch]; g != nil {
			v := g.sampleAt(tRel-nsToSec(g.delayNs), raster)
			switch ch {
			case ChannelX:
				smp.Gradient.X = v
			case ChannelY:
				smp.Gradient.Y = v
			case ChannelZ:
				smp.Gradient.Z = v
			}
		}
	}
	if blk.adc != nil {
		smp.ADC = blk.adc.sampleAt(tRel)
	}
	return smp, nil
}

// SampleGradient evaluates one gradient axis at each of the given
// times, in Hz/m. Every time must lie within [0, Duration].
func (s *Sequence) SampleGradient(ch Channel, times []float64) ([]float64, error) {
	if !ch.valid() {
		return nil, unknownChannelf(ch)
	}
	out := make([]float64, len(times))
	for i, t := range times {
		if err := s.checkTime(t); err != nil {
			return nil, err
		}
		out[i] = s.gradientAt(ch, t)
	}
	return out, nil
}

// SampleRF evaluates the RF channel at each of the given times. Every
// time must lie within [0, Duration].
func (s *Sequence) SampleRF(times []float64) ([]RFSample, error) {
	out := make([]RFSample, len(times))
	for i, t := range times {
		if err := s.checkTime(t); err != nil {
			return nil, err
		}
		out[i] = s.rfAt(t)
	}
	return out, nil
}

// gradientAt evaluates one axis without range checking; callers
// validate t first.
func (s *Sequence) gradientAt(ch Channel, t float64) float64 {
	if len(s.blocks) == 0 {
		return 0
	}
	blk := &s.blocks[s.blockAt(t)]
	g := blk.grad[ch]
	if g == nil {
		return 0
	}
	te := t - blk.startSec - nsToSec(g.delayNs)
	return g.sampleAt(te, rasterSec(s.defs.Rasters.Gradient))
}

// rfAt evaluates the RF state without range checking.
func (s *Sequence) rfAt(t float64) RFSample {
	if len(s.blocks) == 0 {
		return RFSample{}
	}
	blk := &s.blocks[s.blockAt(t)]
	if blk.rf == nil {
		return RFSample{}
	}
	te := t - blk.startSec - nsToSec(blk.rf.delayNs)
	return blk.rf.sampleAt(te, rasterSec(s.defs.Rasters.RF))
}

func rasterSec(d time.Duration) float64 { return nsToSec(int64(d)) }

// sampleAt evaluates the pulse at te seconds past its delay. Outside
// [0, body) everything is zero, frequency included.
func (p *rfPulse) sampleAt(te, rasterSec float64) RFSample {
	if te < 0 || te >= nsToSec(p.bodyNs) {
		return RFSample{}
	}
	var out RFSample
	out.Amplitude = p.amp * interpShape(p.ampShape, p.timeShape, rasterSec, te)
	out.Phase = p.phase
	if p.phaseShape != nil {
		out.Phase += interpShape(p.phaseShape, p.timeShape, rasterSec, te) * tau
	}
	out.Frequency = p.freq
	return out
}

// sampleAt evaluates the gradient at te seconds past its delay.
func (g *gradPulse) sampleAt(te, rasterSec float64) float64 {
	if te < 0 || te >= nsToSec(g.bodyNs) {
		return 0
	}
	if g.trap {
		return g.amp * trapShape(te, nsToSec(g.riseNs), nsToSec(g.flatNs), nsToSec(g.fallNs))
	}
	return g.amp * interpShape(g.shape, g.timeShape, rasterSec, te)
}

// sampleAt reports the ADC state at tRel seconds past the block start.
// The window is closed on both ends; a sample falling exactly on the
// final dwell edge still reads as active.
func (a *adcReadout) sampleAt(tRel float64) ADCSample {
	start := nsToSec(a.delayNs)
	end := nsToSec(a.delayNs + int64(a.num)*a.dwellNs)
	if tRel < start || tRel > end {
		return ADCSample{}
	}
	return ADCSample{Active: true, Phase: a.phase, Frequency: a.freq}
}

// trapShape is the unit trapezoid: a linear ramp up over rise, a
// plateau of flat, a linear ramp down over fall.
func trapShape(te, rise, flat, fall float64) float64 {
	switch {
	case te < 0:
		return 0
	case te < rise:
		return te / rise
	case te < rise+flat:
		return 1
	case te < rise+flat+fall:
		return (rise + flat + fall - te) / fall
	default:
		return 0
	}
}

// interpShape linearly interpolates a sampled waveform at te seconds.
// Sample i sits at tick i on the regular raster, or at timeShape[i]
// ticks when a time shape stretches the waveform. Past the last sample
// the final value holds for the remaining tick.
func interpShape(samples, timeShape []float64, rasterSec, te float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	x := te / rasterSec
	if timeShape == nil {
		if x < 0 || x >= float64(n) {
			return 0
		}
		i := int(x)
		if i >= n-1 {
			return samples[n-1]
		}
		f := x - float64(i)
		return samples[i] + (samples[i+1]-samples[i])*f
	}

	if x <= timeShape[0] {
		return samples[0]
	}
	if x >= timeShape[n-1] {
		return samples[n-1]
	}
	i := sort.SearchFloat64s(timeShape, x)
	// x is strictly between timeShape[i-1] and timeShape[i] here
	f := (x - timeShape[i-1]) / (timeShape[i] - timeShape[i-1])
	return samples[i-1] + (samples[i]-samples[i-1])*f
}

const tau = 2 * math.Pi
