package seq

import "time"

// Sequence is an immutable pulse sequence on an absolute time axis.
// Build is the only constructor; afterwards every method is read-only
// and safe for concurrent use.
//
// Time inside the model is integer nanoseconds. The query surface
// speaks float64 seconds; each boundary value is derived from the
// exact integer form, never from accumulated floating sums.
type Sequence struct {
	version Version
	defs    GlobalDefs

	blocks []block
	starts []int64 // absolute block starts, ns, ascending

	durNs  int64
	durSec float64

	stats Stats
}

// Stats counts what a build resolved, for logging and metrics.
type Stats struct {
	Blocks    int
	Shapes    int // shapes decoded (each compressed stream at most once)
	RFPulses  int
	Gradients int
	ADCs      int
	Delays    int
}

// block is one fully resolved block. Event pointers are shared between
// blocks that reference the same table entry; the pointed-to structs
// are never written after Build returns.
type block struct {
	id      int
	startNs int64
	durNs   int64

	startSec float64

	rf      *rfPulse
	grad    [3]*gradPulse
	adc     *adcReadout
	delayNs int64
}

// rfPulse is a resolved RF event. Shapes are decoded, delays are ns.
type rfPulse struct {
	amp        float64
	ampShape   []float64
	phaseShape []float64 // nil: constant zero
	timeShape  []float64 // nil: regular raster, in raster units otherwise
	delayNs    int64
	bodyNs     int64 // active span after the delay
	freq       float64
	phase      float64
}

// gradPulse is a resolved gradient event, either an analytic trapezoid
// or a decoded free waveform.
type gradPulse struct {
	amp float64

	trap                   bool
	riseNs, flatNs, fallNs int64

	shape     []float64
	timeShape []float64

	delayNs int64
	bodyNs  int64
}

// adcReadout is a resolved readout window.
type adcReadout struct {
	num     int
	dwellNs int64
	delayNs int64
	freq    float64
	phase   float64
}

// Duration returns the total duration in seconds: the sum of all block
// durations.
func (s *Sequence) Duration() float64 { return s.durSec }

// NumBlocks returns the number of blocks on the timeline.
func (s *Sequence) NumBlocks() int { return len(s.blocks) }

// Version returns the source format revision the sequence came from.
func (s *Sequence) Version() Version { return s.version }

// Name returns the sequence name from the definitions, if any.
func (s *Sequence) Name() string { return s.defs.Name }

// FOV returns the field of view in meters per axis. ok is false when
// the source declared none.
func (s *Sequence) FOV() (fov [3]float64, ok bool) {
	return s.defs.FOV, s.defs.HasFOV
}

// Rasters returns the four time grids the sequence is quantized on.
func (s *Sequence) Rasters() Rasters { return s.defs.Rasters }

// Definition returns the raw definition value for key, as written in
// the source.
func (s *Sequence) Definition(key string) (string, bool) {
	v, ok := s.defs.Raw[key]
	return v, ok
}

// Stats returns counters describing the build.
func (s *Sequence) Stats() Stats { return s.stats }

// blockAt returns the index of the block covering time t (seconds).
// The caller guarantees 0 <= t <= Duration; t == Duration maps to the
// last block.
func (s *Sequence) blockAt(t float64) int {
	lo, hi := 0, len(s.blocks)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.blocks[mid].startSec > t {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return 0
	}
	return lo - 1
}

// checkTime validates a query time against the sequence span.
func (s *Sequence) checkTime(t float64) error {
	if t < 0 || t > s.durSec {
		return outOfRangef(t, s.durSec)
	}
	return nil
}

// nsToSec converts exact model time to the query time axis.
func nsToSec(ns int64) float64 { return float64(ns) / float64(time.Second) }
