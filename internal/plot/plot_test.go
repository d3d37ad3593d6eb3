package plot

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulseq-frame/disseqt/seq"
)

func demoSequence(t *testing.T) *seq.Sequence {
	t.Helper()
	tab := seq.Tables{
		Version: seq.Version{Major: 1, Minor: 4},
		Defs: seq.GlobalDefs{
			Rasters: seq.Rasters{
				Block:    10 * time.Microsecond,
				RF:       time.Microsecond,
				Gradient: 10 * time.Microsecond,
				ADC:      100 * time.Nanosecond,
			},
		},
		Shapes: map[int]*seq.Shape{},
		RF:     map[int]seq.RFEvent{},
		Gradients: map[int]seq.GradientEvent{
			1: {Trap: true, Amp: 1000, Rise: 2 * time.Millisecond, Flat: 16 * time.Millisecond, Fall: 2 * time.Millisecond},
		},
		ADCs:   map[int]seq.ADCEvent{1: {Num: 4, Dwell: time.Millisecond}},
		Delays: map[int]seq.DelayEvent{},
		Blocks: []seq.BlockDef{
			{ID: 1, DurationRaster: 2000, Grad: [3]int{1, 0, 0}},
			{ID: 2, DurationRaster: 500, ADC: 1},
		},
	}
	s, err := seq.Build(tab)
	require.NoError(t, err)
	return s
}

func renderLines(t *testing.T, s *seq.Sequence, opts Options) []string {
	t.Helper()
	var buf bytes.Buffer
	opts.Out = &buf
	require.NoError(t, Run(s, opts))
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestRun_TrapezoidPanel(t *testing.T) {
	s := demoSequence(t)
	lines := renderLines(t, s, Options{Width: 45, Height: 2, Channels: []string{"gx", "adc"}})

	// header + 2 rows above axis + axis + 2 below + adc marks + adc axis
	require.Len(t, lines, 8)

	top, low, axis := lines[1], lines[2], lines[3]
	require.Contains(t, axis, "gx")
	require.Contains(t, axis, "─")
	require.Contains(t, axis, "peak 1000")

	// The ramp reaches the lower threshold before the upper one.
	require.Greater(t, strings.Count(low, "█"), strings.Count(top, "█"))
	require.NotZero(t, strings.Count(top, "█"))

	// Nothing below the axis: the trapezoid never goes negative.
	require.Zero(t, strings.Count(lines[4], "█"))
	require.Zero(t, strings.Count(lines[5], "█"))

	require.Equal(t, 4, strings.Count(lines[6], "│"))
	require.Contains(t, lines[7], "4 samples")
}

func TestRun_AllChannelsByDefault(t *testing.T) {
	s := demoSequence(t)
	lines := renderLines(t, s, Options{Width: 60})

	// header + four signed panels of 7 rows + the two adc rows
	require.Len(t, lines, 1+4*7+2)

	// No RF in the demo, so its panel is flat and unlabeled by a peak.
	var rfAxis string
	for _, line := range lines {
		if strings.HasPrefix(line, "rf") {
			rfAxis = line
		}
	}
	require.NotEmpty(t, rfAxis)
	require.NotContains(t, rfAxis, "peak")
}

func TestRun_WindowSelectsADC(t *testing.T) {
	s := demoSequence(t)
	lines := renderLines(t, s, Options{
		From:     0.0205,
		To:       0.0225,
		Width:    45,
		Channels: []string{"adc"},
	})

	require.Len(t, lines, 3)
	require.Equal(t, 2, strings.Count(lines[1], "│"))
	require.Contains(t, lines[2], "2 samples")
}

func TestRun_InvalidChannel(t *testing.T) {
	var buf bytes.Buffer
	err := Run(demoSequence(t), Options{Out: &buf, Channels: []string{"gq"}})
	require.ErrorContains(t, err, "invalid channel")
}

func TestRun_EmptyWindow(t *testing.T) {
	var buf bytes.Buffer
	err := Run(demoSequence(t), Options{Out: &buf, From: 1.0})
	require.ErrorContains(t, err, "empty plot window")
}

func TestRun_Color(t *testing.T) {
	s := demoSequence(t)
	var buf bytes.Buffer
	require.NoError(t, Run(s, Options{Out: &buf, Width: 45, ForceColor: true, Channels: []string{"gx"}}))
	require.Contains(t, buf.String(), "\x1b[")
}
