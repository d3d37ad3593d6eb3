package seq

import (
	"fmt"
	"math"
	"sync"
)

// Shape is a sampled waveform stored in its compressed wire form. The
// expensive decode runs at most once, on first use, and its result is
// shared by every event referencing the shape.
type Shape struct {
	id       int
	declared int

	compressed []float64 // nil when raw already holds plain samples
	raw        []float64

	once    sync.Once
	samples []float64
	err     error
}

// NewShape wraps a compressed sample stream. declared is the sample
// count the stream must expand to.
func NewShape(id, declared int, compressed []float64) *Shape {
	return &Shape{id: id, declared: declared, compressed: compressed}
}

// NewRawShape wraps samples that are already decompressed, as stored
// by writers when compression would not pay off.
func NewRawShape(id int, samples []float64) *Shape {
	return &Shape{id: id, declared: len(samples), raw: samples}
}

// ID returns the shape id from the source tables.
func (s *Shape) ID() int { return s.id }

// Len returns the declared sample count without forcing a decode.
func (s *Shape) Len() int { return s.declared }

// Compressed returns the stored wire stream when the shape was created
// from one. Writers use it to round-trip shapes without re-encoding.
func (s *Shape) Compressed() ([]float64, bool) {
	if s.compressed != nil {
		return s.compressed, true
	}
	return nil, false
}

// Samples decompresses the shape on first call and returns the decoded
// samples afterwards. The returned slice is shared; callers must not
// modify it. Samples is safe for concurrent use.
func (s *Shape) Samples() ([]float64, error) {
	s.once.Do(func() {
		if s.raw != nil {
			s.samples = s.raw
			return
		}
		s.samples, s.err = DecodeShape(s.compressed, s.declared)
	})
	if s.err != nil {
		return nil, fmt.Errorf("shape %d: %w", s.id, s.err)
	}
	return s.samples, nil
}

// DecodeShape expands a derivative-encoded, run-length-compressed
// sample stream into numSamples plain samples.
//
// The stream holds successive differences. A value equal to its
// predecessor marks the start of a run: the value after the pair is a
// count of additional repetitions of that difference. The pair check
// is suspended for two positions after each count, so a difference
// that happens to equal a count cannot start a phantom run. The
// decoded samples are the running sum of the expanded differences.
func DecodeShape(compressed []float64, numSamples int) ([]float64, error) {
	if numSamples < 0 {
		return nil, fmt.Errorf("%w: negative sample count %d", ErrCompression, numSamples)
	}

	deriv := make([]float64, 0, numSamples)
	prev2 := math.Inf(-1)
	prev1 := math.Inf(1)
	skip := 0
	for _, v := range compressed {
		if prev2 == prev1 && skip == 0 {
			if v < 0 || v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: repeat count %g is not a non-negative integer", ErrCompression, v)
			}
			n := int(v)
			if len(deriv)+n > numSamples {
				return nil, fmt.Errorf("%w: expands past %d declared samples", ErrCompression, numSamples)
			}
			for i := 0; i < n; i++ {
				deriv = append(deriv, prev1)
			}
			skip = 2
		} else {
			if skip > 0 {
				skip--
			}
			if len(deriv) == numSamples {
				return nil, fmt.Errorf("%w: expands past %d declared samples", ErrCompression, numSamples)
			}
			deriv = append(deriv, v)
		}
		prev2 = prev1
		prev1 = v
	}
	if len(deriv) != numSamples {
		return nil, fmt.Errorf("%w: stream expands to %d of %d declared samples", ErrCompression, len(deriv), numSamples)
	}

	out := deriv
	sum := 0.0
	for i, d := range out {
		sum += d
		out[i] = sum
	}
	return out, nil
}

// checkShapeRange verifies decoded amplitude-class samples stay within
// [-1, 1]. A small slack absorbs the rounding that text encoders
// introduce.
func checkShapeRange(samples []float64) error {
	const slack = 1e-6
	for i, v := range samples {
		if v < -1-slack || v > 1+slack {
			return fmt.Errorf("%w: sample %d is %g", ErrShapeValue, i, v)
		}
	}
	return nil
}

// checkTimeShape verifies a time shape is strictly increasing and
// starts at or after zero, so it can index the waveform it stretches.
func checkTimeShape(samples []float64) error {
	if len(samples) > 0 && samples[0] < 0 {
		return fmt.Errorf("%w: time shape starts at %g", ErrShapeValue, samples[0])
	}
	for i := 1; i < len(samples); i++ {
		if samples[i] <= samples[i-1] {
			return fmt.Errorf("%w: time shape not increasing at sample %d", ErrShapeValue, i)
		}
	}
	return nil
}
