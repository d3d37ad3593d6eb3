package seq

import (
	"fmt"
	"time"
)

// Channel selects one of the three spatial gradient axes.
type Channel int

const (
	ChannelX Channel = iota
	ChannelY
	ChannelZ
)

func (c Channel) String() string {
	switch c {
	case ChannelX:
		return "x"
	case ChannelY:
		return "y"
	case ChannelZ:
		return "z"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

func (c Channel) valid() bool { return c >= ChannelX && c <= ChannelZ }

// EventKind selects an event category for queries.
type EventKind int

const (
	KindRF EventKind = iota
	KindGradientX
	KindGradientY
	KindGradientZ
	KindADC
	KindDelay
)

// GradientKind returns the event kind for a gradient channel.
func GradientKind(ch Channel) EventKind {
	return KindGradientX + EventKind(ch)
}

func (k EventKind) String() string {
	switch k {
	case KindRF:
		return "rf"
	case KindGradientX:
		return "grad-x"
	case KindGradientY:
		return "grad-y"
	case KindGradientZ:
		return "grad-z"
	case KindADC:
		return "adc"
	case KindDelay:
		return "delay"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one occurrence of an event on the absolute time axis, as
// yielded by EventsInRange. Start is inclusive, End exclusive, both in
// seconds from the start of the sequence.
type Event struct {
	Kind  EventKind
	Block int // id of the block the event belongs to
	Start float64
	End   float64
}

// RFSample is the state of the RF channel at one instant. Amplitude is
// in Hz, Phase in radians, Frequency in Hz. All three are zero outside
// any pulse.
type RFSample struct {
	Amplitude float64
	Phase     float64
	Frequency float64
}

// GradientSample is the state of the three gradient axes at one
// instant, in Hz/m.
type GradientSample struct {
	X, Y, Z float64
}

// Channel returns the sample on the given axis.
func (g GradientSample) Channel(ch Channel) float64 {
	switch ch {
	case ChannelX:
		return g.X
	case ChannelY:
		return g.Y
	default:
		return g.Z
	}
}

// ADCSample tells whether the ADC is sampling at one instant and, if
// so, with which phase and frequency offset.
type ADCSample struct {
	Active    bool
	Phase     float64
	Frequency float64
}

// Sample is the complete instantaneous state of the sequence.
type Sample struct {
	Time     float64
	RF       RFSample
	Gradient GradientSample
	ADC      ADCSample
}

// RFMoment is the accumulated effect of RF over an interval, reduced
// to a flip angle and a phase, both in radians.
type RFMoment struct {
	FlipAngle float64
	Phase     float64
}

// GradientMoments are the zeroth-order integrals of the three gradient
// axes over an interval.
type GradientMoments struct {
	X, Y, Z float64
}

// Channel returns the moment on the given axis.
func (g GradientMoments) Channel(ch Channel) float64 {
	switch ch {
	case ChannelX:
		return g.X
	case ChannelY:
		return g.Y
	default:
		return g.Z
	}
}

// Moment bundles the RF and gradient integrals over one interval.
type Moment struct {
	RF       RFMoment
	Gradient GradientMoments
}

// Rasters are the four time grids a sequence is quantized on.
type Rasters struct {
	Block    time.Duration
	RF       time.Duration
	Gradient time.Duration
	ADC      time.Duration
}

// Version identifies the source format revision a sequence was parsed
// from.
type Version struct {
	Major    int
	Minor    int
	Revision int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// AtLeast reports whether v is version major.minor or newer.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}
