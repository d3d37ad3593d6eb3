package seq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequence_Accessors(t *testing.T) {
	tb := emptyTables()
	tb.Version = Version{Major: 1, Minor: 4, Revision: 0}
	tb.Defs.Name = "epi"
	tb.Defs.FOV = [3]float64{0.256, 0.256, 0.192}
	tb.Defs.HasFOV = true
	tb.Defs.Raw = map[string]string{"AdcRasterTime": "1e-07"}

	s, err := Build(tb)
	require.NoError(t, err)

	require.Equal(t, "epi", s.Name())
	require.Equal(t, "1.4.0", s.Version().String())
	require.True(t, s.Version().AtLeast(1, 4))
	require.False(t, s.Version().AtLeast(1, 5))

	fov, ok := s.FOV()
	require.True(t, ok)
	require.Equal(t, [3]float64{0.256, 0.256, 0.192}, fov)

	require.Equal(t, 10*time.Microsecond, s.Rasters().Block)

	v, ok := s.Definition("AdcRasterTime")
	require.True(t, ok)
	require.Equal(t, "1e-07", v)

	_, ok = s.Definition("absent")
	require.False(t, ok)
}

func TestSequence_NoFOV(t *testing.T) {
	s, err := Build(emptyTables())
	require.NoError(t, err)

	_, ok := s.FOV()
	require.False(t, ok)
}

// Queries share one immutable sequence; running them in parallel must
// produce the same answers as running them alone. The race detector
// turns any hidden write into a failure here.
func TestSequence_ConcurrentQueries(t *testing.T) {
	s := demoSequence(t)

	wantMoment, err := s.Integrate(0, s.Duration())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				smp, err := s.Sample(0.020)
				require.NoError(t, err)
				require.InDelta(t, 1000, smp.Gradient.X, 1e-9)

				n := 0
				for range s.AdcEvents() {
					n++
				}
				require.Equal(t, 4, n)

				m, err := s.Integrate(0, s.Duration())
				require.NoError(t, err)
				require.Equal(t, wantMoment, m)

				evs := collectEvents(s, 0, s.Duration())
				require.Len(t, evs, 3)
			}
		}()
	}
	wg.Wait()
}
