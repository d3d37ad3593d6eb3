package seq

import (
	"errors"
	"fmt"
)

// Sentinel errors reported while building a sequence from parsed tables.
// All of them wrap into the error chain, so callers can test with
// errors.Is regardless of the surrounding context.
var (
	// ErrCompression indicates a payload that cannot be decompressed:
	// a shape stream expanding to the wrong sample count, a run-length
	// count that is negative or fractional, or a compressed container
	// section that fails to expand.
	ErrCompression = errors.New("shape decompression failed")

	// ErrDanglingReference indicates a block or event referring to an
	// id that is absent from its table.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrDurationOverflow indicates that accumulating block durations
	// exceeded the representable time range.
	ErrDurationOverflow = errors.New("total duration overflows the time axis")

	// ErrEventFootprint indicates an event extending past the end of
	// its block.
	ErrEventFootprint = errors.New("event footprint exceeds block duration")

	// ErrShapeValue indicates decoded shape samples outside the range
	// their role allows, or a time shape whose samples do not
	// increase.
	ErrShapeValue = errors.New("shape samples out of range")
)

// Sentinel errors reported by queries on a built sequence. Loading
// cannot return these; they mean the caller asked for something the
// sequence does not contain.
var (
	// ErrOutOfRangeTime indicates a query time outside [0, Duration].
	ErrOutOfRangeTime = errors.New("time outside sequence")

	// ErrUnknownChannel indicates a gradient channel that does not
	// exist.
	ErrUnknownChannel = errors.New("unknown gradient channel")
)

// Errors reported by format parsers before tables exist. They live
// here so every adapter shares one taxonomy.
var (
	// ErrMalformedHeader indicates an input whose leading bytes do not
	// form a valid header for the detected format.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrUnknownVersion indicates a syntactically valid header naming
	// a version no parser supports.
	ErrUnknownVersion = errors.New("unsupported format version")

	// ErrMissingSection indicates that a section required by the
	// declared version is absent.
	ErrMissingSection = errors.New("required section missing")
)

// ReferenceError reports the table and id of a dangling reference,
// plus the block that held it. It wraps ErrDanglingReference.
type ReferenceError struct {
	Block int    // block id holding the reference
	Table string // table the id was looked up in
	ID    int    // the id that was not found
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("block %d: %s id %d: %v", e.Block, e.Table, e.ID, ErrDanglingReference)
}

func (e *ReferenceError) Unwrap() error { return ErrDanglingReference }

// FootprintError reports an event whose extent passes the end of its
// block. Times are in nanoseconds. It wraps ErrEventFootprint.
type FootprintError struct {
	Block     int
	Event     string // table name of the offending event
	Footprint int64
	Duration  int64
}

func (e *FootprintError) Error() string {
	return fmt.Sprintf("block %d: %s event ends at %dns, block ends at %dns: %v",
		e.Block, e.Event, e.Footprint, e.Duration, ErrEventFootprint)
}

func (e *FootprintError) Unwrap() error { return ErrEventFootprint }

// outOfRangef builds an ErrOutOfRangeTime with the offending time and
// the valid range attached.
func outOfRangef(t, max float64) error {
	return fmt.Errorf("%w: t=%gs, sequence spans [0s, %gs]", ErrOutOfRangeTime, t, max)
}

// unknownChannelf builds an ErrUnknownChannel naming the channel.
func unknownChannelf(ch Channel) error {
	return fmt.Errorf("%w: %d", ErrUnknownChannel, int(ch))
}
