package seq

import (
	"iter"
	"math"
)

// EventsInRange returns the events whose [start, end) span overlaps
// [t0, t1), keyed by absolute start time in seconds. Events come in
// block order; within a block the order is rf, gradient x, y, z, adc,
// delay. The iterator is lazy, finite, and can be ranged over any
// number of times; breaking early stops the walk.
func (s *Sequence) EventsInRange(t0, t1 float64) iter.Seq2[float64, Event] {
	return func(yield func(float64, Event) bool) {
		if len(s.blocks) == 0 || t1 <= t0 {
			return
		}
		first := 0
		if t0 > 0 {
			first = s.blockAt(min(t0, s.durSec))
		}
		buf := make([]Event, 0, 6)
		for i := first; i < len(s.blocks); i++ {
			blk := &s.blocks[i]
			if blk.startSec >= t1 {
				return
			}
			buf = blk.appendEvents(buf[:0])
			for _, ev := range buf {
				if ev.Start >= t1 || ev.End <= t0 {
					continue
				}
				if !yield(ev.Start, ev) {
					return
				}
			}
		}
	}
}

// appendEvents collects the block's events with absolute spans, in the
// fixed in-block order.
func (blk *block) appendEvents(dst []Event) []Event {
	if p := blk.rf; p != nil {
		st := blk.startNs + p.delayNs
		dst = append(dst, Event{Kind: KindRF, Block: blk.id, Start: nsToSec(st), End: nsToSec(st + p.bodyNs)})
	}
	for ch := ChannelX; ch <= ChannelZ; ch++ {
		g := blk.grad[ch]
		if g == nil {
			continue
		}
		st := blk.startNs + g.delayNs
		dst = append(dst, Event{Kind: GradientKind(ch), Block: blk.id, Start: nsToSec(st), End: nsToSec(st + g.bodyNs)})
	}
	if a := blk.adc; a != nil {
		st := blk.startNs + a.delayNs
		end := st + int64(a.num)*a.dwellNs
		dst = append(dst, Event{Kind: KindADC, Block: blk.id, Start: nsToSec(st), End: nsToSec(end)})
	}
	if blk.delayNs > 0 {
		dst = append(dst, Event{Kind: KindDelay, Block: blk.id, Start: blk.startSec, End: nsToSec(blk.startNs + blk.delayNs)})
	}
	return dst
}

// AdcEvents returns every sample timestamp of every readout, in
// seconds, ascending. A readout with n samples and dwell d contributes
// n timestamps spaced exactly d apart, the first at the start of its
// acquisition window.
func (s *Sequence) AdcEvents() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for i := range s.blocks {
			a := s.blocks[i].adc
			if a == nil {
				continue
			}
			base := s.blocks[i].startNs + a.delayNs
			for k := 0; k < a.num; k++ {
				if !yield(nsToSec(base + int64(k)*a.dwellNs)) {
					return
				}
			}
		}
	}
}

// NextEncounter returns the span of the first event of the given kind
// still active at or starting after t. ok is false when no such event
// exists.
func (s *Sequence) NextEncounter(kind EventKind, t float64) (start, end float64, ok bool) {
	if len(s.blocks) == 0 {
		return 0, 0, false
	}
	first := 0
	if t > 0 {
		first = s.blockAt(min(t, s.durSec))
	}
	for i := first; i < len(s.blocks); i++ {
		st, en, found := s.blocks[i].span(kind)
		if found && en > t {
			return st, en, true
		}
	}
	return 0, 0, false
}

// span returns the absolute span of the block's event of the given
// kind, if present.
func (blk *block) span(kind EventKind) (start, end float64, ok bool) {
	switch kind {
	case KindRF:
		if blk.rf != nil {
			st := blk.startNs + blk.rf.delayNs
			return nsToSec(st), nsToSec(st + blk.rf.bodyNs), true
		}
	case KindGradientX, KindGradientY, KindGradientZ:
		if g := blk.grad[kind-KindGradientX]; g != nil {
			st := blk.startNs + g.delayNs
			return nsToSec(st), nsToSec(st + g.bodyNs), true
		}
	case KindADC:
		if a := blk.adc; a != nil {
			st := blk.startNs + a.delayNs
			return nsToSec(st), nsToSec(st + int64(a.num)*a.dwellNs), true
		}
	case KindDelay:
		if blk.delayNs > 0 {
			return blk.startSec, nsToSec(blk.startNs + blk.delayNs), true
		}
	}
	return 0, 0, false
}

// NextPOI returns the first point of interest of the given kind at or
// after t: shape sample edges for RF and free gradients, ramp vertices
// for trapezoids, dwell centers for readouts. Delays have no points of
// interest.
func (s *Sequence) NextPOI(kind EventKind, t float64) (float64, bool) {
	if len(s.blocks) == 0 || kind == KindDelay {
		return 0, false
	}
	first := 0
	if t > 0 {
		// one block back: the edge closing a block coincides with the
		// start of the next and still counts as at-or-after t
		first = max(s.blockAt(min(t, s.durSec))-1, 0)
	}
	for i := first; i < len(s.blocks); i++ {
		if poi, ok := s.blocks[i].nextPOI(kind, t, s.defs.Rasters); ok {
			return poi, true
		}
	}
	return 0, false
}

// POIs returns the points of interest of the given kind inside
// [t0, t1], ascending. The iterator is lazy and restartable.
func (s *Sequence) POIs(kind EventKind, t0, t1 float64) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		t := t0
		for {
			poi, ok := s.NextPOI(kind, t)
			if !ok || poi > t1 {
				return
			}
			if !yield(poi) {
				return
			}
			t = math.Nextafter(poi, math.Inf(1))
		}
	}
}

// nextPOI finds the block-local point of interest at or after t, in
// absolute seconds.
func (blk *block) nextPOI(kind EventKind, t float64, r Rasters) (float64, bool) {
	switch kind {
	case KindRF:
		if blk.rf == nil {
			return 0, false
		}
		start := nsToSec(blk.startNs + blk.rf.delayNs)
		if blk.rf.timeShape != nil {
			return nextShapePOI(blk.rf.timeShape, start, rasterSec(r.RF), t)
		}
		return nextEdgePOI(start, rasterSec(r.RF), len(blk.rf.ampShape), t)

	case KindGradientX, KindGradientY, KindGradientZ:
		g := blk.grad[kind-KindGradientX]
		if g == nil {
			return 0, false
		}
		start := nsToSec(blk.startNs + g.delayNs)
		if g.trap {
			rise, flat, fall := nsToSec(g.riseNs), nsToSec(g.flatNs), nsToSec(g.fallNs)
			for _, v := range [...]float64{start, start + rise, start + rise + flat, start + rise + flat + fall} {
				if v >= t {
					return v, true
				}
			}
			return 0, false
		}
		if g.timeShape != nil {
			return nextShapePOI(g.timeShape, start, rasterSec(r.Gradient), t)
		}
		return nextEdgePOI(start, rasterSec(r.Gradient), len(g.shape), t)

	case KindADC:
		a := blk.adc
		if a == nil || a.num == 0 {
			return 0, false
		}
		start := nsToSec(blk.startNs + a.delayNs)
		dwell := nsToSec(a.dwellNs)
		idx := math.Ceil((t-start)/dwell - 0.5)
		if idx < 0 {
			idx = 0
		}
		// the division can round the candidate back below t; step
		// forward until the contract holds
		for ; idx <= float64(a.num-1); idx++ {
			if v := start + (idx+0.5)*dwell; v >= t {
				return v, true
			}
		}
		return 0, false
	}
	return 0, false
}

// nextEdgePOI returns the first raster edge at or after t for a
// waveform of n samples starting at start. Edges run from the first
// sample to one raster past the last.
func nextEdgePOI(start, raster float64, n int, t float64) (float64, bool) {
	idx := math.Ceil((t - start) / raster)
	if idx < 0 {
		idx = 0
	}
	for ; idx <= float64(n); idx++ {
		if v := start + idx*raster; v >= t {
			return v, true
		}
	}
	return 0, false
}

// nextShapePOI returns the first explicit sample instant at or after t
// for a time-shaped waveform.
func nextShapePOI(timeShape []float64, start, raster float64, t float64) (float64, bool) {
	for _, tick := range timeShape {
		v := start + tick*raster
		if v >= t {
			return v, true
		}
	}
	return 0, false
}
