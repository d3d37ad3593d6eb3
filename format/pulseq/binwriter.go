package pulseq

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/pulseq-frame/disseqt/seq"
)

// zstdEncoder is a package-level encoder shared across calls. EncodeAll
// is safe for concurrent use.
var (
	zstdEncoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
)

func getZstdEncoder() *zstd.Encoder {
	zstdEncoderOnce.Do(func() {
		var err error
		zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("pulseq: zstd.NewWriter: %v", err))
		}
	})
	return zstdEncoder
}

// WriteBinary encodes the tables as a binary container. The shapes
// section is zstd-compressed when that makes it smaller.
func WriteBinary(w io.Writer, t seq.Tables) error {
	type rawSection struct {
		kind    uint8
		flags   uint8
		payload []byte
	}

	shapes, err := appendShapesSec(nil, t.Shapes)
	if err != nil {
		return err
	}
	shapeFlags := uint8(0)
	if len(shapes) > 0 {
		if comp := getZstdEncoder().EncodeAll(shapes, make([]byte, 0, len(shapes))); len(comp) < len(shapes) {
			shapes, shapeFlags = comp, flagZstd
		}
	}

	sections := []rawSection{
		{kind: secVersion, payload: appendVersionSec(nil, t.Version)},
		{kind: secDefinitions, payload: appendDefinitionsSec(nil, t.Defs)},
		{kind: secBlocks, payload: appendBlocksSec(nil, t.Blocks)},
	}
	if p := appendRFSec(nil, t.RF); p != nil {
		sections = append(sections, rawSection{kind: secRF, payload: p})
	}
	grads, traps := appendGradientSecs(t.Gradients)
	if grads != nil {
		sections = append(sections, rawSection{kind: secGradients, payload: grads})
	}
	if traps != nil {
		sections = append(sections, rawSection{kind: secTraps, payload: traps})
	}
	if p := appendADCSec(nil, t.ADCs); p != nil {
		sections = append(sections, rawSection{kind: secADC, payload: p})
	}
	if p := appendDelaysSec(nil, t.Delays); p != nil {
		sections = append(sections, rawSection{kind: secDelays, payload: p})
	}
	if len(shapes) > 0 {
		sections = append(sections, rawSection{kind: secShapes, flags: shapeFlags, payload: shapes})
	}

	head := make([]byte, 0, headerSize+len(sections)*tocSize)
	head = binary.LittleEndian.AppendUint32(head, binMagic)
	head = binary.LittleEndian.AppendUint16(head, binVersion)
	head = binary.LittleEndian.AppendUint16(head, uint16(len(sections)))

	offset := uint64(headerSize + len(sections)*tocSize)
	for _, sec := range sections {
		head = append(head, sec.kind, sec.flags, 0, 0)
		head = binary.LittleEndian.AppendUint64(head, offset)
		head = binary.LittleEndian.AppendUint64(head, uint64(len(sec.payload)))
		offset += uint64(len(sec.payload))
	}

	if _, err := w.Write(head); err != nil {
		return err
	}
	for _, sec := range sections {
		if _, err := w.Write(sec.payload); err != nil {
			return err
		}
	}
	return nil
}

func appendI32(b []byte, v int) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(int32(v)))
}

func appendI64(b []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(v))
}

func appendF64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

func appendStr(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

func appendVersionSec(b []byte, v seq.Version) []byte {
	b = binary.LittleEndian.AppendUint16(b, uint16(v.Major))
	b = binary.LittleEndian.AppendUint16(b, uint16(v.Minor))
	return binary.LittleEndian.AppendUint16(b, uint16(v.Revision))
}

func appendDefinitionsSec(b []byte, defs seq.GlobalDefs) []byte {
	b = appendStr(b, defs.Name)
	if defs.HasFOV {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	for _, v := range defs.FOV {
		b = appendF64(b, v)
	}
	b = appendF64(b, defs.MaxGrad)
	b = appendF64(b, defs.MaxSlew)
	b = appendI64(b, int64(defs.Rasters.Block))
	b = appendI64(b, int64(defs.Rasters.RF))
	b = appendI64(b, int64(defs.Rasters.Gradient))
	b = appendI64(b, int64(defs.Rasters.ADC))
	b = appendI64(b, int64(defs.RFDeadTime))
	b = appendI64(b, int64(defs.RFRingdownTime))

	keys := make([]string, 0, len(defs.Raw))
	for k := range defs.Raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(keys)))
	for _, k := range keys {
		b = appendStr(b, k)
		b = appendStr(b, defs.Raw[k])
	}
	return b
}

func appendBlocksSec(b []byte, blocks []seq.BlockDef) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(blocks)))
	for _, bd := range blocks {
		b = appendI32(b, bd.ID)
		b = appendI64(b, bd.DurationRaster)
		b = appendI32(b, bd.Delay)
		b = appendI32(b, bd.RF)
		for _, g := range bd.Grad {
			b = appendI32(b, g)
		}
		b = appendI32(b, bd.ADC)
		b = appendI32(b, bd.Ext)
	}
	return b
}

func appendRFSec(b []byte, rf map[int]seq.RFEvent) []byte {
	if len(rf) == 0 {
		return nil
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(rf)))
	for _, id := range sortedKeys(rf) {
		ev := rf[id]
		b = appendI32(b, id)
		b = appendF64(b, ev.Amp)
		b = appendI32(b, ev.AmpShape)
		b = appendI32(b, ev.PhaseShape)
		b = appendI32(b, ev.TimeShape)
		b = appendI64(b, int64(ev.Delay))
		b = appendF64(b, ev.Freq)
		b = appendF64(b, ev.Phase)
	}
	return b
}

func appendGradientSecs(grads map[int]seq.GradientEvent) (free, trap []byte) {
	var freeIDs, trapIDs []int
	for _, id := range sortedKeys(grads) {
		if grads[id].Trap {
			trapIDs = append(trapIDs, id)
		} else {
			freeIDs = append(freeIDs, id)
		}
	}

	if len(freeIDs) > 0 {
		free = binary.LittleEndian.AppendUint32(nil, uint32(len(freeIDs)))
		for _, id := range freeIDs {
			ev := grads[id]
			free = appendI32(free, id)
			free = appendF64(free, ev.Amp)
			free = appendI32(free, ev.Shape)
			free = appendI32(free, ev.TimeShape)
			free = appendI64(free, int64(ev.Delay))
		}
	}
	if len(trapIDs) > 0 {
		trap = binary.LittleEndian.AppendUint32(nil, uint32(len(trapIDs)))
		for _, id := range trapIDs {
			ev := grads[id]
			trap = appendI32(trap, id)
			trap = appendF64(trap, ev.Amp)
			trap = appendI64(trap, int64(ev.Rise))
			trap = appendI64(trap, int64(ev.Flat))
			trap = appendI64(trap, int64(ev.Fall))
			trap = appendI64(trap, int64(ev.Delay))
		}
	}
	return free, trap
}

func appendADCSec(b []byte, adcs map[int]seq.ADCEvent) []byte {
	if len(adcs) == 0 {
		return nil
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(adcs)))
	for _, id := range sortedKeys(adcs) {
		ev := adcs[id]
		b = appendI32(b, id)
		b = appendI32(b, ev.Num)
		b = appendI64(b, int64(ev.Dwell))
		b = appendI64(b, int64(ev.Delay))
		b = appendF64(b, ev.Freq)
		b = appendF64(b, ev.Phase)
	}
	return b
}

func appendDelaysSec(b []byte, delays map[int]seq.DelayEvent) []byte {
	if len(delays) == 0 {
		return nil
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(delays)))
	for _, id := range sortedKeys(delays) {
		b = appendI32(b, id)
		b = appendI64(b, int64(delays[id].Duration))
	}
	return b
}

func appendShapesSec(b []byte, shapes map[int]*seq.Shape) ([]byte, error) {
	if len(shapes) == 0 {
		return nil, nil
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(shapes)))
	for _, id := range sortedKeys(shapes) {
		sh := shapes[id]
		b = appendI32(b, id)
		b = binary.LittleEndian.AppendUint32(b, uint32(sh.Len()))

		vals, compressed := sh.Compressed()
		if compressed {
			b = append(b, 0)
		} else {
			var err error
			if vals, err = sh.Samples(); err != nil {
				return nil, err
			}
			b = append(b, 1)
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(len(vals)))
		for _, v := range vals {
			b = appendF64(b, v)
		}
	}
	return b, nil
}
