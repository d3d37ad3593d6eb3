package seq

import "fmt"

// Build resolves tables into an immutable Sequence. Every reference is
// followed, every referenced shape is decoded, and every block is laid
// out on the absolute time axis. On any error the sequence is
// discarded whole; Build never returns a partially valid model.
func Build(t Tables) (*Sequence, error) {
	r := t.Defs.Rasters
	if r.Block <= 0 || r.RF <= 0 || r.Gradient <= 0 || r.ADC <= 0 {
		return nil, fmt.Errorf("raster grid not fully defined: %+v", r)
	}

	b := &builder{
		t:      t,
		rfs:    make(map[int]*rfPulse),
		grads:  make(map[int]*gradPulse),
		adcs:   make(map[int]*adcReadout),
		delays: make(map[int]bool),
		shapes: make(map[int]bool),
	}

	s := &Sequence{
		version: t.Version,
		defs:    t.Defs,
		blocks:  make([]block, 0, len(t.Blocks)),
		starts:  make([]int64, 0, len(t.Blocks)),
	}

	var startNs int64
	for _, bd := range t.Blocks {
		blk, err := b.resolveBlock(bd)
		if err != nil {
			return nil, err
		}
		blk.startNs = startNs
		blk.startSec = nsToSec(startNs)

		next, ok := addNs(startNs, blk.durNs)
		if !ok {
			return nil, fmt.Errorf("block %d: %w", bd.ID, ErrDurationOverflow)
		}
		startNs = next

		s.blocks = append(s.blocks, blk)
		s.starts = append(s.starts, blk.startNs)
	}

	s.durNs = startNs
	s.durSec = nsToSec(startNs)

	b.stats.Blocks = len(s.blocks)
	s.stats = b.stats
	return s, nil
}

// builder caches resolved events so blocks referencing the same id
// share one immutable instance, and shape decoding runs once.
type builder struct {
	t Tables

	rfs    map[int]*rfPulse
	grads  map[int]*gradPulse
	adcs   map[int]*adcReadout
	delays map[int]bool
	shapes map[int]bool

	stats Stats
}

func (b *builder) resolveBlock(bd BlockDef) (block, error) {
	blk := block{id: bd.ID}

	var feet []footprint

	if bd.RF != 0 {
		ev, ok := b.t.RF[bd.RF]
		if !ok {
			return blk, &ReferenceError{Block: bd.ID, Table: "rf", ID: bd.RF}
		}
		p, err := b.resolveRF(bd.ID, bd.RF, ev)
		if err != nil {
			return blk, err
		}
		blk.rf = p
		end, ok := addNs(p.delayNs, p.bodyNs)
		if ok {
			end, ok = addNs(end, int64(b.t.Defs.RFRingdownTime))
		}
		if !ok {
			return blk, fmt.Errorf("block %d: rf %d: %w", bd.ID, bd.RF, ErrDurationOverflow)
		}
		feet = append(feet, footprint{"rf", end})
	}

	for ch, id := range bd.Grad {
		if id == 0 {
			continue
		}
		ev, ok := b.t.Gradients[id]
		if !ok {
			return blk, &ReferenceError{Block: bd.ID, Table: "gradients", ID: id}
		}
		p, err := b.resolveGradient(bd.ID, id, ev)
		if err != nil {
			return blk, err
		}
		blk.grad[ch] = p
		end, ok := addNs(p.delayNs, p.bodyNs)
		if !ok {
			return blk, fmt.Errorf("block %d: gradient %d: %w", bd.ID, id, ErrDurationOverflow)
		}
		feet = append(feet, footprint{"grad-" + Channel(ch).String(), end})
	}

	if bd.ADC != 0 {
		ev, ok := b.t.ADCs[bd.ADC]
		if !ok {
			return blk, &ReferenceError{Block: bd.ID, Table: "adc", ID: bd.ADC}
		}
		p, err := b.resolveADC(bd.ID, bd.ADC, ev)
		if err != nil {
			return blk, err
		}
		blk.adc = p
		body, ok := mulNs(int64(p.num), p.dwellNs)
		if ok {
			body, ok = addNs(body, p.delayNs)
		}
		if !ok {
			return blk, fmt.Errorf("block %d: adc %d: %w", bd.ID, bd.ADC, ErrDurationOverflow)
		}
		feet = append(feet, footprint{"adc", body})
	}

	if bd.Delay != 0 {
		ev, ok := b.t.Delays[bd.Delay]
		if !ok {
			return blk, &ReferenceError{Block: bd.ID, Table: "delays", ID: bd.Delay}
		}
		if ev.Duration < 0 {
			return blk, fmt.Errorf("block %d: delay %d: negative duration", bd.ID, bd.Delay)
		}
		blk.delayNs = int64(ev.Duration)
		if !b.delays[bd.Delay] {
			b.delays[bd.Delay] = true
			b.stats.Delays++
		}
		feet = append(feet, footprint{"delay", blk.delayNs})
	}

	durNs, err := b.blockDuration(bd, feet)
	if err != nil {
		return blk, err
	}
	blk.durNs = durNs

	for _, f := range feet {
		if f.endNs > durNs {
			return blk, &FootprintError{Block: bd.ID, Event: f.event, Footprint: f.endNs, Duration: durNs}
		}
	}
	return blk, nil
}

// footprint is how far into its block one event extends.
type footprint struct {
	event string
	endNs int64
}

// blockDuration either scales the declared raster count or, for
// sources without explicit durations, rounds the longest footprint up
// to the block raster.
func (b *builder) blockDuration(bd BlockDef, feet []footprint) (int64, error) {
	br := int64(b.t.Defs.Rasters.Block)
	if bd.DurationRaster < 0 {
		return 0, fmt.Errorf("block %d: negative duration", bd.ID)
	}
	if bd.DurationRaster > 0 {
		dur, ok := mulNs(bd.DurationRaster, br)
		if !ok {
			return 0, fmt.Errorf("block %d: %w", bd.ID, ErrDurationOverflow)
		}
		return dur, nil
	}
	var longest int64
	for _, f := range feet {
		if f.endNs > longest {
			longest = f.endNs
		}
	}
	over, ok := addNs(longest, br-1)
	if !ok {
		return 0, fmt.Errorf("block %d: %w", bd.ID, ErrDurationOverflow)
	}
	dur, ok := mulNs(over/br, br)
	if !ok {
		return 0, fmt.Errorf("block %d: %w", bd.ID, ErrDurationOverflow)
	}
	return dur, nil
}

func (b *builder) resolveRF(blockID, id int, ev RFEvent) (*rfPulse, error) {
	if p, ok := b.rfs[id]; ok {
		return p, nil
	}
	if ev.Delay < 0 {
		return nil, fmt.Errorf("block %d: rf %d: negative delay", blockID, id)
	}

	amp, err := b.shapeSamples(blockID, ev.AmpShape, roleAmplitude)
	if err != nil {
		return nil, err
	}
	p := &rfPulse{
		amp:      ev.Amp,
		ampShape: amp,
		delayNs:  int64(ev.Delay),
		freq:     ev.Freq,
		phase:    ev.Phase,
	}
	if ev.PhaseShape != 0 {
		p.phaseShape, err = b.shapeSamples(blockID, ev.PhaseShape, roleAmplitude)
		if err != nil {
			return nil, err
		}
		if len(p.phaseShape) != len(amp) {
			return nil, fmt.Errorf("block %d: rf %d: phase shape holds %d samples, amplitude shape %d: %w",
				blockID, id, len(p.phaseShape), len(amp), ErrShapeValue)
		}
	}
	if ev.TimeShape != 0 {
		p.timeShape, err = b.shapeSamples(blockID, ev.TimeShape, roleTime)
		if err != nil {
			return nil, err
		}
		if len(p.timeShape) != len(amp) {
			return nil, fmt.Errorf("block %d: rf %d: time shape holds %d samples, amplitude shape %d: %w",
				blockID, id, len(p.timeShape), len(amp), ErrShapeValue)
		}
	}
	p.bodyNs, err = shapeBody(amp, p.timeShape, int64(b.t.Defs.Rasters.RF))
	if err != nil {
		return nil, fmt.Errorf("block %d: rf %d: %w", blockID, id, err)
	}

	b.rfs[id] = p
	b.stats.RFPulses++
	return p, nil
}

func (b *builder) resolveGradient(blockID, id int, ev GradientEvent) (*gradPulse, error) {
	if p, ok := b.grads[id]; ok {
		return p, nil
	}
	if ev.Delay < 0 {
		return nil, fmt.Errorf("block %d: gradient %d: negative delay", blockID, id)
	}

	p := &gradPulse{amp: ev.Amp, delayNs: int64(ev.Delay)}
	if ev.Trap {
		if ev.Rise < 0 || ev.Flat < 0 || ev.Fall < 0 {
			return nil, fmt.Errorf("block %d: gradient %d: negative ramp", blockID, id)
		}
		p.trap = true
		p.riseNs = int64(ev.Rise)
		p.flatNs = int64(ev.Flat)
		p.fallNs = int64(ev.Fall)
		body, ok := addNs(p.riseNs, p.flatNs)
		if ok {
			body, ok = addNs(body, p.fallNs)
		}
		if !ok {
			return nil, fmt.Errorf("block %d: gradient %d: %w", blockID, id, ErrDurationOverflow)
		}
		p.bodyNs = body
	} else {
		var err error
		p.shape, err = b.shapeSamples(blockID, ev.Shape, roleAmplitude)
		if err != nil {
			return nil, err
		}
		if ev.TimeShape != 0 {
			p.timeShape, err = b.shapeSamples(blockID, ev.TimeShape, roleTime)
			if err != nil {
				return nil, err
			}
			if len(p.timeShape) != len(p.shape) {
				return nil, fmt.Errorf("block %d: gradient %d: time shape holds %d samples, waveform %d: %w",
					blockID, id, len(p.timeShape), len(p.shape), ErrShapeValue)
			}
		}
		p.bodyNs, err = shapeBody(p.shape, p.timeShape, int64(b.t.Defs.Rasters.Gradient))
		if err != nil {
			return nil, fmt.Errorf("block %d: gradient %d: %w", blockID, id, err)
		}
	}

	b.grads[id] = p
	b.stats.Gradients++
	return p, nil
}

func (b *builder) resolveADC(blockID, id int, ev ADCEvent) (*adcReadout, error) {
	if p, ok := b.adcs[id]; ok {
		return p, nil
	}
	if ev.Num < 0 || ev.Dwell < 0 || ev.Delay < 0 {
		return nil, fmt.Errorf("block %d: adc %d: negative field", blockID, id)
	}
	p := &adcReadout{
		num:     ev.Num,
		dwellNs: int64(ev.Dwell),
		delayNs: int64(ev.Delay),
		freq:    ev.Freq,
		phase:   ev.Phase,
	}
	b.adcs[id] = p
	b.stats.ADCs++
	return p, nil
}

type shapeRole int

const (
	roleAmplitude shapeRole = iota
	roleTime
)

// shapeSamples resolves a shape id, decodes it (once, however many
// events share it) and validates the samples for the referencing role.
func (b *builder) shapeSamples(blockID, id int, role shapeRole) ([]float64, error) {
	sh, ok := b.t.Shapes[id]
	if id == 0 || !ok {
		return nil, &ReferenceError{Block: blockID, Table: "shapes", ID: id}
	}
	samples, err := sh.Samples()
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", blockID, err)
	}
	switch role {
	case roleAmplitude:
		err = checkShapeRange(samples)
	case roleTime:
		err = checkTimeShape(samples)
	}
	if err != nil {
		return nil, fmt.Errorf("block %d: shape %d: %w", blockID, id, err)
	}
	if !b.shapes[id] {
		b.shapes[id] = true
		b.stats.Shapes++
	}
	return samples, nil
}

// shapeBody computes the active span of a sampled waveform. On the
// regular raster each of the n samples occupies one tick. A time shape
// places sample i at timeShape[i] ticks; the span still ends one tick
// after the last sample, so the identity time shape 0..n-1 reproduces
// the regular footprint.
func shapeBody(samples, timeShape []float64, rasterNs int64) (int64, error) {
	if timeShape == nil {
		body, ok := mulNs(int64(len(samples)), rasterNs)
		if !ok {
			return 0, ErrDurationOverflow
		}
		return body, nil
	}
	if len(timeShape) == 0 {
		return 0, nil
	}
	last := timeShape[len(timeShape)-1]
	ticks := int64(last)
	if float64(ticks) < last {
		ticks++
	}
	body, ok := mulNs(ticks+1, rasterNs)
	if !ok {
		return 0, ErrDurationOverflow
	}
	return body, nil
}

// addNs adds two nanosecond counts, reporting overflow.
func addNs(a, b int64) (int64, bool) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, false
	}
	return s, true
}

// mulNs multiplies two nanosecond counts, reporting overflow.
func mulNs(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == minInt64) || (b == -1 && a == minInt64) {
		return 0, false
	}
	return p, true
}

const minInt64 = -1 << 63
