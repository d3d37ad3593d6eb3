package disseqt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pulseq-frame/disseqt/format/pulseq"
	"github.com/pulseq-frame/disseqt/seq"
)

// A three-block sequence: an RF block of 1000 block-raster units, a
// trapezoid gradient block of 2000 units and a readout block of 500
// units with four samples every 100 units.
const greSource = `# Pulseq sequence file
[VERSION]
major 1
minor 4
revision 0

[DEFINITIONS]
AdcRasterTime 1e-07
BlockDurationRaster 1e-05
GradientRasterTime 1e-05
RadiofrequencyRasterTime 1e-06
FOV 0.25 0.25 0.008
Name gre

[BLOCKS]
 1 1000 1 0 0 0 0 0
 2 2000 0 1 0 0 0 0
 3  500 0 0 0 0 1 0

[RF]
1 250 1 2 0 100 0 0

[TRAP]
 1 1000 2000 16000 2000 0

[ADC]
1 4 1000000 0 0 0

[SHAPES]

shape_id 1
num_samples 100
1
0
0
97

shape_id 2
num_samples 100
0
0
98
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gre.seq")
	require.NoError(t, os.WriteFile(path, []byte(greSource), 0o644))
	return path
}

func TestLoad_EndToEnd(t *testing.T) {
	s, err := Load(writeFixture(t))
	require.NoError(t, err)

	require.Equal(t, 0.035, s.Duration())
	require.Equal(t, 3, s.NumBlocks())
	require.Equal(t, "gre", s.Name())

	var adc []float64
	for ts := range s.AdcEvents() {
		adc = append(adc, ts)
	}
	require.Equal(t, []float64{0.030, 0.031, 0.032, 0.033}, adc)

	var kinds []seq.EventKind
	for _, ev := range s.EventsInRange(0, s.Duration()) {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []seq.EventKind{seq.KindRF, seq.KindGradientX, seq.KindADC}, kinds)

	// Halfway up the ramp the trapezoid reads half its plateau value.
	g, err := s.SampleGradient(seq.ChannelX, []float64{0.011, 0.015, 0.029})
	require.NoError(t, err)
	require.InDelta(t, 500, g[0], 1e-9)
	require.InDelta(t, 1000, g[1], 1e-9)
	require.InDelta(t, 500, g[2], 1e-9)
}

func TestLoadBytes_DetectsBinary(t *testing.T) {
	tab, err := pulseq.ParseText([]byte(greSource))
	require.NoError(t, err)

	f, err := os.CreateTemp(t.TempDir(), "gre-*.bin")
	require.NoError(t, err)
	require.NoError(t, pulseq.WriteBinary(f, tab))
	require.NoError(t, f.Close())

	s, err := Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, 0.035, s.Duration())
}

func TestLoadBytes_FormatHint(t *testing.T) {
	s, err := LoadBytes([]byte(greSource), WithFormat(pulseq.FormatText))
	require.NoError(t, err)
	require.Equal(t, 3, s.NumBlocks())

	_, err = LoadBytes([]byte(greSource), WithFormat("no-such-format"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoadBytes_Unrecognized(t *testing.T) {
	_, err := LoadBytes([]byte("plain prose, not a sequence"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.seq"))
	require.Error(t, err)
}

func TestLoadBytes_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadBytes([]byte(greSource), WithContext(ctx))
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadBytes_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	_, err := LoadBytes([]byte(greSource), WithMetrics(m))
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues(pulseq.FormatText, "ok")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.BlocksLoaded))
	require.Equal(t, 2.0, testutil.ToFloat64(m.ShapesDecoded))

	_, err = LoadBytes([]byte("[VERSION]\nmajor 1\nminor 5\n[BLOCKS]\n1 0 0 0 0 0 0"), WithMetrics(m))
	require.ErrorIs(t, err, seq.ErrUnknownVersion)
	require.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues(pulseq.FormatText, "error")))
}

func TestLoadBytes_Logs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	_, err := LoadBytes([]byte(greSource), WithLogger(zap.New(core)))
	require.NoError(t, err)

	entries := logs.FilterMessage("sequence loaded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, pulseq.FormatText, fields["format"])
	require.Equal(t, int64(3), fields["blocks"])
}
