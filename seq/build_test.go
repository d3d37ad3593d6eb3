package seq

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRasters() Rasters {
	return Rasters{
		Block:    10 * time.Microsecond,
		RF:       time.Microsecond,
		Gradient: 10 * time.Microsecond,
		ADC:      100 * time.Nanosecond,
	}
}

func emptyTables() Tables {
	return Tables{
		Version:   Version{Major: 1, Minor: 4},
		Defs:      GlobalDefs{Rasters: testRasters()},
		Shapes:    map[int]*Shape{},
		RF:        map[int]RFEvent{},
		Gradients: map[int]GradientEvent{},
		ADCs:      map[int]ADCEvent{},
		Delays:    map[int]DelayEvent{},
	}
}

// flatShape is a constant-one waveform of n samples.
func flatShape(id, n int) *Shape {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return NewRawShape(id, s)
}

func TestBuild_Empty(t *testing.T) {
	s, err := Build(emptyTables())
	require.NoError(t, err)
	require.Equal(t, 0, s.NumBlocks())
	require.Equal(t, 0.0, s.Duration())
}

func TestBuild_MissingRasters(t *testing.T) {
	tb := emptyTables()
	tb.Defs.Rasters.ADC = 0
	_, err := Build(tb)
	require.Error(t, err)
}

func TestBuild_AbsoluteOffsets(t *testing.T) {
	tb := emptyTables()
	tb.Blocks = []BlockDef{
		{ID: 1, DurationRaster: 1000},
		{ID: 2, DurationRaster: 2000},
		{ID: 3, DurationRaster: 500},
	}

	s, err := Build(tb)
	require.NoError(t, err)
	require.Equal(t, 3, s.NumBlocks())
	require.InDelta(t, 0.035, s.Duration(), 1e-15)
	require.Equal(t, []int64{0, 10_000_000, 30_000_000}, s.starts)
}

func TestBuild_ComputedDuration(t *testing.T) {
	tb := emptyTables()
	tb.Gradients[1] = GradientEvent{
		Amp: 1000, Trap: true,
		Rise: 2 * time.Microsecond, Flat: 5 * time.Microsecond, Fall: 2 * time.Microsecond,
	}
	// no declared duration: the 9us trapezoid rounds up to one 10us tick
	tb.Blocks = []BlockDef{{ID: 1, Grad: [3]int{1, 0, 0}}}

	s, err := Build(tb)
	require.NoError(t, err)
	require.InDelta(t, 10e-6, s.Duration(), 1e-15)
}

func TestBuild_ComputedDurationTakesLongestEvent(t *testing.T) {
	tb := emptyTables()
	tb.Gradients[1] = GradientEvent{
		Amp: 1000, Trap: true,
		Rise: 2 * time.Microsecond, Flat: 5 * time.Microsecond, Fall: 2 * time.Microsecond,
	}
	tb.Delays[4] = DelayEvent{Duration: 25 * time.Microsecond}
	tb.Blocks = []BlockDef{{ID: 1, Grad: [3]int{1, 0, 0}, Delay: 4}}

	s, err := Build(tb)
	require.NoError(t, err)
	require.InDelta(t, 30e-6, s.Duration(), 1e-15)
}

func TestBuild_DanglingReferences(t *testing.T) {
	cases := map[string]func(*Tables){
		"rf":        func(tb *Tables) { tb.Blocks[0].RF = 8 },
		"gradients": func(tb *Tables) { tb.Blocks[0].Grad[1] = 8 },
		"adc":       func(tb *Tables) { tb.Blocks[0].ADC = 8 },
		"delays":    func(tb *Tables) { tb.Blocks[0].Delay = 8 },
	}
	for table, mutate := range cases {
		t.Run(table, func(t *testing.T) {
			tb := emptyTables()
			tb.Blocks = []BlockDef{{ID: 3, DurationRaster: 100}}
			mutate(&tb)

			_, err := Build(tb)
			require.ErrorIs(t, err, ErrDanglingReference)

			var ref *ReferenceError
			require.ErrorAs(t, err, &ref)
			require.Equal(t, 3, ref.Block)
			require.Equal(t, table, ref.Table)
			require.Equal(t, 8, ref.ID)
		})
	}
}

func TestBuild_DanglingShape(t *testing.T) {
	tb := emptyTables()
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 42}
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: 100, RF: 1}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrDanglingReference)

	var ref *ReferenceError
	require.ErrorAs(t, err, &ref)
	require.Equal(t, "shapes", ref.Table)
	require.Equal(t, 42, ref.ID)
}

func TestBuild_FootprintExceedsBlock(t *testing.T) {
	tb := emptyTables()
	// 2000 samples of 100ns dwell reach 200us into a 100us block
	tb.ADCs[1] = ADCEvent{Num: 2000, Dwell: 100 * time.Nanosecond}
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: 10, ADC: 1}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrEventFootprint)

	var fe *FootprintError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 1, fe.Block)
	require.Equal(t, "adc", fe.Event)
	require.Equal(t, int64(200_000), fe.Footprint)
	require.Equal(t, int64(100_000), fe.Duration)
}

func TestBuild_FootprintIncludesRingdown(t *testing.T) {
	tb := emptyTables()
	tb.Defs.RFRingdownTime = 30 * time.Microsecond
	tb.Shapes[1] = flatShape(1, 80)
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 1}
	// pulse body 80us + ringdown 30us does not fit 100us
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: 10, RF: 1}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrEventFootprint)
}

func TestBuild_DurationOverflow(t *testing.T) {
	tb := emptyTables()
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: math.MaxInt64 / 100}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrDurationOverflow)
}

func TestBuild_DurationOverflowAccumulates(t *testing.T) {
	tb := emptyTables()
	// each block fits in int64 nanoseconds, the sum does not
	tb.Blocks = []BlockDef{
		{ID: 1, DurationRaster: math.MaxInt64 / 20_000},
		{ID: 2, DurationRaster: math.MaxInt64 / 20_000},
		{ID: 3, DurationRaster: math.MaxInt64 / 20_000},
	}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrDurationOverflow)
}

func TestBuild_CompressionFailsAtLoad(t *testing.T) {
	tb := emptyTables()
	tb.Shapes[1] = NewShape(1, 100, []float64{1, 1, 1})
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 1}
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: 100, RF: 1}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrCompression)
}

func TestBuild_AmplitudeShapeRange(t *testing.T) {
	tb := emptyTables()
	tb.Shapes[1] = NewRawShape(1, []float64{0, 0.5, 1.5, 0})
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 1}
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: 100, RF: 1}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrShapeValue)
}

func TestBuild_TimeShapeMustIncrease(t *testing.T) {
	tb := emptyTables()
	tb.Shapes[1] = flatShape(1, 3)
	tb.Shapes[2] = NewRawShape(2, []float64{0, 5, 3})
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 1, TimeShape: 2}
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: 100, RF: 1}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrShapeValue)
}

func TestBuild_PhaseShapeLengthMismatch(t *testing.T) {
	tb := emptyTables()
	tb.Shapes[1] = flatShape(1, 4)
	tb.Shapes[2] = NewRawShape(2, []float64{0, 0})
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 1, PhaseShape: 2}
	tb.Blocks = []BlockDef{{ID: 1, DurationRaster: 100, RF: 1}}

	_, err := Build(tb)
	require.ErrorIs(t, err, ErrShapeValue)
}

func TestBuild_SharedEventsResolveOnce(t *testing.T) {
	tb := emptyTables()
	tb.Shapes[1] = flatShape(1, 10)
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 1}
	tb.Blocks = []BlockDef{
		{ID: 1, DurationRaster: 100, RF: 1},
		{ID: 2, DurationRaster: 100, RF: 1},
		{ID: 3, DurationRaster: 100, RF: 1},
	}

	s, err := Build(tb)
	require.NoError(t, err)
	require.Same(t, s.blocks[0].rf, s.blocks[1].rf)
	require.Same(t, s.blocks[1].rf, s.blocks[2].rf)

	st := s.Stats()
	require.Equal(t, 3, st.Blocks)
	require.Equal(t, 1, st.RFPulses)
	require.Equal(t, 1, st.Shapes)
}

func TestBuild_Stats(t *testing.T) {
	tb := emptyTables()
	tb.Shapes[1] = flatShape(1, 10)
	tb.Shapes[2] = NewRawShape(2, []float64{0, 0.5, 1, 0.5, 0})
	tb.RF[1] = RFEvent{Amp: 100, AmpShape: 1}
	tb.Gradients[1] = GradientEvent{Amp: 50, Shape: 2}
	tb.Gradients[2] = GradientEvent{Amp: 50, Trap: true, Rise: time.Microsecond, Flat: time.Microsecond, Fall: time.Microsecond}
	tb.ADCs[1] = ADCEvent{Num: 16, Dwell: 100 * time.Nanosecond}
	tb.Delays[1] = DelayEvent{Duration: 20 * time.Microsecond}
	tb.Blocks = []BlockDef{
		{ID: 1, DurationRaster: 100, RF: 1, Grad: [3]int{1, 2, 0}},
		{ID: 2, DurationRaster: 100, ADC: 1, Delay: 1},
	}

	s, err := Build(tb)
	require.NoError(t, err)

	st := s.Stats()
	require.Equal(t, Stats{Blocks: 2, Shapes: 2, RFPulses: 1, Gradients: 2, ADCs: 1, Delays: 1}, st)
}
