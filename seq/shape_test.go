package seq

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeShape_Literals(t *testing.T) {
	// plain derivative stream, no runs
	got, err := DecodeShape([]float64{0.5, 0.25, -0.25}, 3)
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, 0.75, 0.5}, got)
}

func TestDecodeShape_Run(t *testing.T) {
	// 0.1 written twice then repeated three more times
	got, err := DecodeShape([]float64{0.1, 0.1, 3}, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, v := range got {
		require.InDelta(t, 0.1*float64(i+1), v, 1e-12)
	}
}

func TestDecodeShape_ZeroRun(t *testing.T) {
	// encoders write a count of zero for a run of exactly two
	got, err := DecodeShape([]float64{1, 1, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, got)
}

func TestDecodeShape_CountValueCollision(t *testing.T) {
	// the count after a pair must not itself trigger a run, even when
	// it matches the following deltas
	got, err := DecodeShape([]float64{2, 2, 1, 3, 3, 1}, 6)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4, 6, 9, 12, 15}, got)
}

func TestDecodeShape_LengthMismatch(t *testing.T) {
	_, err := DecodeShape([]float64{1, 1, 1}, 10)
	require.ErrorIs(t, err, ErrCompression)
}

func TestDecodeShape_ExpandsPastDeclared(t *testing.T) {
	_, err := DecodeShape([]float64{1, 1, 50}, 4)
	require.ErrorIs(t, err, ErrCompression)
}

func TestDecodeShape_BadCount(t *testing.T) {
	for name, count := range map[string]float64{
		"negative":   -2,
		"fractional": 2.5,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeShape([]float64{1, 1, count}, 8)
			require.ErrorIs(t, err, ErrCompression)
		})
	}
}

func TestDecodeShape_Empty(t *testing.T) {
	got, err := DecodeShape(nil, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestShape_SamplesMemoized(t *testing.T) {
	sh := NewShape(7, 5, []float64{0.1, 0.1, 3})

	first, err := sh.Samples()
	require.NoError(t, err)
	second, err := sh.Samples()
	require.NoError(t, err)

	// same backing array, not a re-decode
	require.Equal(t, &first[0], &second[0])
}

func TestShape_SamplesConcurrent(t *testing.T) {
	sh := NewShape(3, 1000, []float64{0.001, 0.001, 998})

	var wg sync.WaitGroup
	out := make([][]float64, 16)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := sh.Samples()
			require.NoError(t, err)
			out[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range out {
		require.Equal(t, &out[0][0], &s[0])
	}
}

func TestShape_SamplesError(t *testing.T) {
	sh := NewShape(9, 10, []float64{1, 1, 1})

	_, err := sh.Samples()
	require.ErrorIs(t, err, ErrCompression)
	require.ErrorContains(t, err, "shape 9")

	// the failure is memoized too
	_, err = sh.Samples()
	require.ErrorIs(t, err, ErrCompression)
}

func TestNewRawShape_NoDecode(t *testing.T) {
	raw := []float64{0, 0.5, 1, 0.5, 0}
	sh := NewRawShape(2, raw)

	require.Equal(t, 5, sh.Len())
	got, err := sh.Samples()
	require.NoError(t, err)
	require.Equal(t, raw, got)
}
