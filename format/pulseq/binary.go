package pulseq

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/pulseq-frame/disseqt/seq"
)

// Binary container layout. A fixed header carries the magic, the
// container version and a section count; a table of contents follows
// with one 20-byte entry per section, then the section payloads. All
// integers are little-endian.
const (
	binMagic   = 0x42515350 // "PSQB"
	binVersion = 1

	headerSize = 8
	tocSize    = 20

	flagZstd = 1 << 0
)

// Section kinds in the table of contents.
const (
	secVersion = iota + 1
	secDefinitions
	secBlocks
	secRF
	secGradients
	secTraps
	secADC
	secDelays
	secShapes
)

// zstdDecoder is a package-level decoder shared across calls.
var (
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
)

func getZstdDecoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		var err error
		zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			panic(fmt.Sprintf("pulseq: zstd.NewReader: %v", err))
		}
	})
	return zstdDecoder
}

type tocEntry struct {
	kind    uint8
	flags   uint8
	payload []byte
}

// ParseBinary interprets the binary container form into neutral tables.
func ParseBinary(data []byte) (seq.Tables, error) {
	sections, err := readContainer(data)
	if err != nil {
		return seq.Tables{}, err
	}

	var t seq.Tables
	have := map[uint8]bool{}
	for _, sec := range sections {
		if have[sec.kind] {
			return seq.Tables{}, fmt.Errorf("%w: duplicate section kind %d", seq.ErrMalformedHeader, sec.kind)
		}
		have[sec.kind] = true

		payload := sec.payload
		if sec.flags&flagZstd != 0 {
			payload, err = getZstdDecoder().DecodeAll(payload, nil)
			if err != nil {
				return seq.Tables{}, fmt.Errorf("%w: section kind %d: zstd: %v", seq.ErrCompression, sec.kind, err)
			}
		}

		c := &cursor{buf: payload}
		switch sec.kind {
		case secVersion:
			t.Version = readVersionSec(c)
		case secDefinitions:
			t.Defs = readDefinitionsSec(c)
		case secBlocks:
			t.Blocks = readBlocksSec(c)
		case secRF:
			t.RF = readRFSec(c)
		case secGradients:
			readGradientsSec(c, &t)
		case secTraps:
			readTrapsSec(c, &t)
		case secADC:
			t.ADCs = readADCSec(c)
		case secDelays:
			t.Delays = readDelaysSec(c)
		case secShapes:
			t.Shapes = readShapesSec(c)
		default:
			continue
		}
		if err := c.finish(); err != nil {
			return seq.Tables{}, fmt.Errorf("section kind %d: %w", sec.kind, err)
		}
	}

	if !have[secVersion] {
		return seq.Tables{}, fmt.Errorf("%w: version section", seq.ErrMissingSection)
	}
	if !have[secBlocks] {
		return seq.Tables{}, fmt.Errorf("%w: blocks section", seq.ErrMissingSection)
	}
	if t.Version.Major != 1 || t.Version.Minor < 2 || t.Version.Minor > 4 {
		return seq.Tables{}, fmt.Errorf("%w: %s", seq.ErrUnknownVersion, t.Version)
	}

	if t.Shapes == nil {
		t.Shapes = map[int]*seq.Shape{}
	}
	if t.RF == nil {
		t.RF = map[int]seq.RFEvent{}
	}
	if t.Gradients == nil {
		t.Gradients = map[int]seq.GradientEvent{}
	}
	if t.ADCs == nil {
		t.ADCs = map[int]seq.ADCEvent{}
	}
	if t.Delays == nil {
		t.Delays = map[int]seq.DelayEvent{}
	}
	if t.Defs.Raw == nil {
		t.Defs.Raw = map[string]string{}
		t.Defs.Rasters = seq.Rasters{
			Block:    defaultBlockRaster,
			RF:       defaultRFRaster,
			Gradient: defaultGradRaster,
			ADC:      defaultADCRaster,
		}
	}
	return t, nil
}

func readContainer(data []byte) ([]tocEntry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header", seq.ErrMalformedHeader)
	}
	if binary.LittleEndian.Uint32(data) != binMagic {
		return nil, fmt.Errorf("%w: bad magic", seq.ErrMalformedHeader)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != binVersion {
		return nil, fmt.Errorf("%w: container version %d", seq.ErrUnknownVersion, v)
	}
	count := int(binary.LittleEndian.Uint16(data[6:]))
	if len(data) < headerSize+count*tocSize {
		return nil, fmt.Errorf("%w: truncated table of contents", seq.ErrMalformedHeader)
	}

	sections := make([]tocEntry, 0, count)
	for i := 0; i < count; i++ {
		e := data[headerSize+i*tocSize:]
		kind := e[0]
		flags := e[1]
		offset := binary.LittleEndian.Uint64(e[4:])
		length := binary.LittleEndian.Uint64(e[12:])
		if offset > uint64(len(data)) || length > uint64(len(data))-offset {
			return nil, fmt.Errorf("%w: section kind %d out of range", seq.ErrMalformedHeader, kind)
		}
		sections = append(sections, tocEntry{
			kind:    kind,
			flags:   flags,
			payload: data[offset : offset+length],
		})
	}
	return sections, nil
}

// cursor walks a section payload. The first decode past the end sets a
// sticky error; finish also rejects trailing bytes.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if c.off+n > len(c.buf) {
		c.err = fmt.Errorf("truncated payload at offset %d", c.off)
		return false
	}
	return true
}

func (c *cursor) u8() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.buf[c.off]
	c.off++
	return v
}

func (c *cursor) u16() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v
}

func (c *cursor) i32() int {
	return int(int32(c.u32()))
}

func (c *cursor) i64() int64 {
	if !c.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return int64(v)
}

func (c *cursor) f64() float64 {
	if !c.need(8) {
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(c.buf[c.off:]))
	c.off += 8
	return v
}

func (c *cursor) str() string {
	n := int(c.u16())
	if !c.need(n) {
		return ""
	}
	v := string(c.buf[c.off : c.off+n])
	c.off += n
	return v
}

func (c *cursor) finish() error {
	if c.err != nil {
		return c.err
	}
	if c.off != len(c.buf) {
		return fmt.Errorf("%d trailing bytes", len(c.buf)-c.off)
	}
	return nil
}

func readVersionSec(c *cursor) seq.Version {
	return seq.Version{
		Major:    int(c.u16()),
		Minor:    int(c.u16()),
		Revision: int(c.u16()),
	}
}

func readDefinitionsSec(c *cursor) seq.GlobalDefs {
	defs := seq.GlobalDefs{Raw: map[string]string{}}
	defs.Name = c.str()
	defs.HasFOV = c.u8() != 0
	for i := range defs.FOV {
		defs.FOV[i] = c.f64()
	}
	defs.MaxGrad = c.f64()
	defs.MaxSlew = c.f64()
	defs.Rasters.Block = time.Duration(c.i64())
	defs.Rasters.RF = time.Duration(c.i64())
	defs.Rasters.Gradient = time.Duration(c.i64())
	defs.Rasters.ADC = time.Duration(c.i64())
	defs.RFDeadTime = time.Duration(c.i64())
	defs.RFRingdownTime = time.Duration(c.i64())
	n := int(c.u16())
	for i := 0; i < n && c.err == nil; i++ {
		key := c.str()
		defs.Raw[key] = c.str()
	}
	return defs
}

func readBlocksSec(c *cursor) []seq.BlockDef {
	n := int(c.u32())
	if c.err != nil {
		return nil
	}
	blocks := make([]seq.BlockDef, 0, n)
	for i := 0; i < n && c.err == nil; i++ {
		bd := seq.BlockDef{ID: c.i32(), DurationRaster: c.i64(), Delay: c.i32()}
		bd.RF = c.i32()
		for j := range bd.Grad {
			bd.Grad[j] = c.i32()
		}
		bd.ADC = c.i32()
		bd.Ext = c.i32()
		blocks = append(blocks, bd)
	}
	return blocks
}

func readRFSec(c *cursor) map[int]seq.RFEvent {
	n := int(c.u32())
	out := make(map[int]seq.RFEvent, n)
	for i := 0; i < n && c.err == nil; i++ {
		id := c.i32()
		out[id] = seq.RFEvent{
			Amp:        c.f64(),
			AmpShape:   c.i32(),
			PhaseShape: c.i32(),
			TimeShape:  c.i32(),
			Delay:      time.Duration(c.i64()),
			Freq:       c.f64(),
			Phase:      c.f64(),
		}
	}
	return out
}

func readGradientsSec(c *cursor, t *seq.Tables) {
	if t.Gradients == nil {
		t.Gradients = map[int]seq.GradientEvent{}
	}
	n := int(c.u32())
	for i := 0; i < n && c.err == nil; i++ {
		id := c.i32()
		t.Gradients[id] = seq.GradientEvent{
			Amp:       c.f64(),
			Shape:     c.i32(),
			TimeShape: c.i32(),
			Delay:     time.Duration(c.i64()),
		}
	}
}

func readTrapsSec(c *cursor, t *seq.Tables) {
	if t.Gradients == nil {
		t.Gradients = map[int]seq.GradientEvent{}
	}
	n := int(c.u32())
	for i := 0; i < n && c.err == nil; i++ {
		id := c.i32()
		t.Gradients[id] = seq.GradientEvent{
			Trap:  true,
			Amp:   c.f64(),
			Rise:  time.Duration(c.i64()),
			Flat:  time.Duration(c.i64()),
			Fall:  time.Duration(c.i64()),
			Delay: time.Duration(c.i64()),
		}
	}
}

func readADCSec(c *cursor) map[int]seq.ADCEvent {
	n := int(c.u32())
	out := make(map[int]seq.ADCEvent, n)
	for i := 0; i < n && c.err == nil; i++ {
		id := c.i32()
		out[id] = seq.ADCEvent{
			Num:   c.i32(),
			Dwell: time.Duration(c.i64()),
			Delay: time.Duration(c.i64()),
			Freq:  c.f64(),
			Phase: c.f64(),
		}
	}
	return out
}

func readDelaysSec(c *cursor) map[int]seq.DelayEvent {
	n := int(c.u32())
	out := make(map[int]seq.DelayEvent, n)
	for i := 0; i < n && c.err == nil; i++ {
		id := c.i32()
		out[id] = seq.DelayEvent{Duration: time.Duration(c.i64())}
	}
	return out
}

func readShapesSec(c *cursor) map[int]*seq.Shape {
	n := int(c.u32())
	out := make(map[int]*seq.Shape, n)
	for i := 0; i < n && c.err == nil; i++ {
		id := c.i32()
		declared := int(c.u32())
		raw := c.u8() != 0
		m := int(c.u32())
		if !c.need(8 * m) {
			break
		}
		vals := make([]float64, m)
		for j := range vals {
			vals[j] = c.f64()
		}
		if raw {
			out[id] = seq.NewRawShape(id, vals)
		} else {
			out[id] = seq.NewShape(id, declared, vals)
		}
	}
	return out
}

// sortedKeys returns the map's keys in ascending order so the writer
// emits a deterministic byte stream.
func sortedKeys[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
