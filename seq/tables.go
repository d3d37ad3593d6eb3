package seq

import "time"

// Tables is the neutral, format-independent product of parsing. A
// format adapter fills these tables and hands them to Build; nothing
// here is resolved or validated yet.
//
// Ids are per-table and arbitrary except that 0 means "no event" in
// block slots, so tables must not use 0 as a key.
type Tables struct {
	Version Version
	Defs    GlobalDefs

	Shapes    map[int]*Shape
	RF        map[int]RFEvent
	Gradients map[int]GradientEvent
	ADCs      map[int]ADCEvent
	Delays    map[int]DelayEvent

	// Blocks in file order. Order is the program: the timeline is the
	// concatenation of exactly these blocks.
	Blocks []BlockDef
}

// GlobalDefs carries sequence-wide metadata and the four time grids.
type GlobalDefs struct {
	Name string

	// FOV in meters per axis; HasFOV is false when the source does not
	// declare one.
	FOV    [3]float64
	HasFOV bool

	MaxGrad float64 // Hz/m, 0 when unspecified
	MaxSlew float64 // Hz/m/s, 0 when unspecified

	Rasters Rasters

	RFDeadTime     time.Duration
	RFRingdownTime time.Duration

	// Raw holds every definition as written, for callers that need
	// vendor keys the model does not interpret.
	Raw map[string]string
}

// RFEvent is one pulse before resolution. Shape ids of 0 mean "none";
// an RF event must reference an amplitude shape, may reference a phase
// shape, and may reference a time shape that replaces the regular
// raster.
type RFEvent struct {
	Amp        float64 // peak amplitude, Hz
	AmpShape   int
	PhaseShape int
	TimeShape  int
	Delay      time.Duration
	Freq       float64 // offset, Hz
	Phase      float64 // offset, rad
}

// GradientEvent is one gradient before resolution. Trap selects the
// analytic trapezoid form; otherwise Shape must name a waveform and
// TimeShape may stretch it.
type GradientEvent struct {
	Amp float64 // Hz/m

	Trap             bool
	Rise, Flat, Fall time.Duration

	Shape     int
	TimeShape int

	Delay time.Duration
}

// ADCEvent is one readout before resolution.
type ADCEvent struct {
	Num   int
	Dwell time.Duration
	Delay time.Duration
	Freq  float64 // offset, Hz
	Phase float64 // offset, rad
}

// DelayEvent is a pure span of time, used by formats that express
// block duration through an explicit delay table.
type DelayEvent struct {
	Duration time.Duration
}

// BlockDef names the events of one block by id. A slot of 0 is empty.
// DurationRaster is the block duration in block-raster units when the
// source declares it; 0 means the duration must be computed from the
// block's longest event.
type BlockDef struct {
	ID             int
	DurationRaster int64
	RF             int
	Grad           [3]int
	ADC            int
	Delay          int
	Ext            int
}
