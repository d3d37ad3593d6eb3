package pulseq

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pulseq-frame/disseqt/seq"
)

// Raster defaults for sources predating explicit raster definitions.
const (
	defaultBlockRaster = 10 * time.Microsecond
	defaultRFRaster    = time.Microsecond
	defaultGradRaster  = 10 * time.Microsecond
	defaultADCRaster   = 100 * time.Nanosecond
)

// ParseText interprets the section-structured text form into neutral
// tables. Versions 1.2 through 1.4 are supported; the version decides
// column counts, units and which sections are required.
func ParseText(data []byte) (seq.Tables, error) {
	secs, err := splitSections(data)
	if err != nil {
		return seq.Tables{}, err
	}

	p := &parser{secs: secs}
	if err := p.parseVersion(); err != nil {
		return seq.Tables{}, err
	}

	t := seq.Tables{Version: p.ver}
	if t.Defs, err = p.parseDefinitions(); err != nil {
		return seq.Tables{}, err
	}
	if t.Shapes, err = p.parseShapes(); err != nil {
		return seq.Tables{}, err
	}
	if t.RF, err = p.parseRF(); err != nil {
		return seq.Tables{}, err
	}
	if t.Gradients, err = p.parseGradients(); err != nil {
		return seq.Tables{}, err
	}
	if t.ADCs, err = p.parseADC(); err != nil {
		return seq.Tables{}, err
	}
	if t.Delays, err = p.parseDelays(); err != nil {
		return seq.Tables{}, err
	}
	if t.Blocks, err = p.parseBlocks(); err != nil {
		return seq.Tables{}, err
	}
	return t, nil
}

type parser struct {
	secs map[string]*section
	ver  seq.Version
}

func (p *parser) section(name string) (*section, bool) {
	s, ok := p.secs[name]
	return s, ok
}

func (p *parser) require(name string) (*section, error) {
	s, ok := p.secs[name]
	if !ok {
		return nil, fmt.Errorf("%w: [%s]", seq.ErrMissingSection, name)
	}
	return s, nil
}

func (p *parser) parseVersion() error {
	sec, err := p.require("VERSION")
	if err != nil {
		return err
	}
	var ver seq.Version
	seen := map[string]bool{}
	for _, r := range sectionRows(sec) {
		if err := r.argc("VERSION", 2); err != nil {
			return err
		}
		v, err := r.int(1)
		if err != nil {
			return err
		}
		key := strings.ToLower(r.fields[0])
		switch key {
		case "major":
			ver.Major = v
		case "minor":
			ver.Minor = v
		case "revision":
			ver.Revision = v
		default:
			return fmt.Errorf("line %d: [VERSION] unknown key %q", r.num, r.fields[0])
		}
		seen[key] = true
	}
	if !seen["major"] || !seen["minor"] {
		return fmt.Errorf("%w: [VERSION] lacks major/minor", seq.ErrMalformedHeader)
	}
	if ver.Major != 1 || ver.Minor < 2 || ver.Minor > 4 {
		return fmt.Errorf("%w: %s", seq.ErrUnknownVersion, ver)
	}
	p.ver = ver
	return nil
}

func (p *parser) parseDefinitions() (seq.GlobalDefs, error) {
	defs := seq.GlobalDefs{
		Rasters: seq.Rasters{
			Block:    defaultBlockRaster,
			RF:       defaultRFRaster,
			Gradient: defaultGradRaster,
			ADC:      defaultADCRaster,
		},
		Raw: map[string]string{},
	}

	sec, ok := p.section("DEFINITIONS")
	if !ok {
		if p.ver.AtLeast(1, 4) {
			return defs, fmt.Errorf("%w: [DEFINITIONS]", seq.ErrMissingSection)
		}
		return defs, nil
	}

	for _, l := range sec.lines {
		fields := strings.Fields(l.text)
		if len(fields) < 2 {
			return defs, fmt.Errorf("line %d: [DEFINITIONS] entry %q has no value", l.num, l.text)
		}
		key := fields[0]
		value := strings.Join(fields[1:], " ")
		defs.Raw[key] = value

		var err error
		switch key {
		case "Name":
			defs.Name = value
		case "FOV":
			err = parseFOV(fields[1:], &defs)
		case "BlockDurationRaster":
			defs.Rasters.Block, err = secDur(fields[1])
		case "RadiofrequencyRasterTime":
			defs.Rasters.RF, err = secDur(fields[1])
		case "GradientRasterTime":
			defs.Rasters.Gradient, err = secDur(fields[1])
		case "AdcRasterTime":
			defs.Rasters.ADC, err = secDur(fields[1])
		case "RfRingdownTime":
			defs.RFRingdownTime, err = secDur(fields[1])
		case "RfDeadTime":
			defs.RFDeadTime, err = secDur(fields[1])
		case "MaxGrad":
			defs.MaxGrad, err = strconv.ParseFloat(fields[1], 64)
		case "MaxSlew":
			defs.MaxSlew, err = strconv.ParseFloat(fields[1], 64)
		}
		if err != nil {
			return defs, fmt.Errorf("line %d: [DEFINITIONS] %s: %v", l.num, key, err)
		}
	}

	if p.ver.AtLeast(1, 4) {
		for key, set := range map[string]bool{
			"BlockDurationRaster":      defs.Raw["BlockDurationRaster"] != "",
			"RadiofrequencyRasterTime": defs.Raw["RadiofrequencyRasterTime"] != "",
			"GradientRasterTime":       defs.Raw["GradientRasterTime"] != "",
			"AdcRasterTime":            defs.Raw["AdcRasterTime"] != "",
		} {
			if !set {
				return defs, fmt.Errorf("%w: [DEFINITIONS] lacks %s", seq.ErrMissingSection, key)
			}
		}
	}
	return defs, nil
}

// parseFOV reads three axis extents. Exports older than v1.4 often
// write millimeters; values too large to be meters are scaled down.
func parseFOV(fields []string, defs *seq.GlobalDefs) error {
	if len(fields) != 3 {
		return fmt.Errorf("want 3 components, got %d", len(fields))
	}
	var fov [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("component %d %q: not a number", i+1, f)
		}
		fov[i] = v
	}
	if fov[0] > 10 || fov[1] > 10 || fov[2] > 10 {
		for i := range fov {
			fov[i] /= 1000
		}
	}
	defs.FOV = fov
	defs.HasFOV = true
	return nil
}

func (p *parser) parseBlocks() ([]seq.BlockDef, error) {
	sec, err := p.require("BLOCKS")
	if err != nil {
		return nil, err
	}

	blocks := make([]seq.BlockDef, 0, len(sec.lines))
	seen := make(map[int]bool, len(sec.lines))
	for _, r := range sectionRows(sec) {
		if p.ver.AtLeast(1, 4) {
			err = r.argc("BLOCKS", 8)
		} else if p.ver.Minor == 3 {
			err = r.argc("BLOCKS", 7, 8)
		} else {
			err = r.argc("BLOCKS", 7)
		}
		if err != nil {
			return nil, err
		}

		vals := make([]int64, len(r.fields))
		for i := range r.fields {
			if vals[i], err = r.i64(i); err != nil {
				return nil, err
			}
		}

		bd := seq.BlockDef{
			ID:   int(vals[0]),
			RF:   int(vals[2]),
			Grad: [3]int{int(vals[3]), int(vals[4]), int(vals[5])},
			ADC:  int(vals[6]),
		}
		if p.ver.AtLeast(1, 4) {
			bd.DurationRaster = vals[1]
			bd.Ext = int(vals[7])
		} else {
			bd.Delay = int(vals[1])
			if len(vals) == 8 {
				bd.Ext = int(vals[7])
			}
		}
		if bd.ID == 0 || seen[bd.ID] {
			return nil, fmt.Errorf("line %d: [BLOCKS] duplicate or zero block id %d", r.num, bd.ID)
		}
		seen[bd.ID] = true
		blocks = append(blocks, bd)
	}
	return blocks, nil
}

func (p *parser) parseRF() (map[int]seq.RFEvent, error) {
	out := map[int]seq.RFEvent{}
	sec, ok := p.section("RF")
	if !ok {
		return out, nil
	}

	for _, r := range sectionRows(sec) {
		var err error
		if p.ver.AtLeast(1, 4) {
			err = r.argc("RF", 8)
		} else {
			err = r.argc("RF", 7)
		}
		if err != nil {
			return nil, err
		}

		id, err := r.int(0)
		if err != nil {
			return nil, err
		}
		ev := seq.RFEvent{}
		if ev.Amp, err = r.float(1); err != nil {
			return nil, err
		}
		if ev.AmpShape, err = r.int(2); err != nil {
			return nil, err
		}
		if ev.PhaseShape, err = r.int(3); err != nil {
			return nil, err
		}
		next := 4
		if p.ver.AtLeast(1, 4) {
			if ev.TimeShape, err = r.int(4); err != nil {
				return nil, err
			}
			next = 5
		}
		delay, err := r.float(next)
		if err != nil {
			return nil, err
		}
		ev.Delay = usDur(delay)
		if ev.Freq, err = r.float(next + 1); err != nil {
			return nil, err
		}
		if ev.Phase, err = r.float(next + 2); err != nil {
			return nil, err
		}

		if err := storeID(out, id, ev, "RF", r.num); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *parser) parseGradients() (map[int]seq.GradientEvent, error) {
	out := map[int]seq.GradientEvent{}

	if sec, ok := p.section("GRADIENTS"); ok {
		for _, r := range sectionRows(sec) {
			var err error
			switch {
			case p.ver.AtLeast(1, 4):
				err = r.argc("GRADIENTS", 5)
			case p.ver.Minor == 3:
				err = r.argc("GRADIENTS", 4)
			default:
				err = r.argc("GRADIENTS", 3)
			}
			if err != nil {
				return nil, err
			}

			id, err := r.int(0)
			if err != nil {
				return nil, err
			}
			ev := seq.GradientEvent{}
			if ev.Amp, err = r.float(1); err != nil {
				return nil, err
			}
			if ev.Shape, err = r.int(2); err != nil {
				return nil, err
			}
			next := 3
			if p.ver.AtLeast(1, 4) {
				if ev.TimeShape, err = r.int(3); err != nil {
					return nil, err
				}
				next = 4
			}
			if len(r.fields) > next {
				delay, err := r.float(next)
				if err != nil {
					return nil, err
				}
				ev.Delay = usDur(delay)
			}

			if err := storeID(out, id, ev, "GRADIENTS", r.num); err != nil {
				return nil, err
			}
		}
	}

	if sec, ok := p.section("TRAP"); ok {
		for _, r := range sectionRows(sec) {
			var err error
			if p.ver.Minor >= 3 {
				err = r.argc("TRAP", 6)
			} else {
				err = r.argc("TRAP", 5)
			}
			if err != nil {
				return nil, err
			}

			id, err := r.int(0)
			if err != nil {
				return nil, err
			}
			ev := seq.GradientEvent{Trap: true}
			if ev.Amp, err = r.float(1); err != nil {
				return nil, err
			}
			rise, err := r.float(2)
			if err != nil {
				return nil, err
			}
			flat, err := r.float(3)
			if err != nil {
				return nil, err
			}
			fall, err := r.float(4)
			if err != nil {
				return nil, err
			}
			ev.Rise, ev.Flat, ev.Fall = usDur(rise), usDur(flat), usDur(fall)
			if len(r.fields) > 5 {
				delay, err := r.float(5)
				if err != nil {
					return nil, err
				}
				ev.Delay = usDur(delay)
			}

			if err := storeID(out, id, ev, "TRAP", r.num); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (p *parser) parseADC() (map[int]seq.ADCEvent, error) {
	out := map[int]seq.ADCEvent{}
	sec, ok := p.section("ADC")
	if !ok {
		return out, nil
	}

	for _, r := range sectionRows(sec) {
		if err := r.argc("ADC", 6); err != nil {
			return nil, err
		}
		id, err := r.int(0)
		if err != nil {
			return nil, err
		}
		ev := seq.ADCEvent{}
		if ev.Num, err = r.int(1); err != nil {
			return nil, err
		}
		dwell, err := r.float(2)
		if err != nil {
			return nil, err
		}
		ev.Dwell = nsDur(dwell)
		delay, err := r.float(3)
		if err != nil {
			return nil, err
		}
		ev.Delay = usDur(delay)
		if ev.Freq, err = r.float(4); err != nil {
			return nil, err
		}
		if ev.Phase, err = r.float(5); err != nil {
			return nil, err
		}
		if ev.Num <= 0 || ev.Dwell <= 0 {
			return nil, fmt.Errorf("line %d: [ADC] id %d: num and dwell must be positive", r.num, id)
		}

		if err := storeID(out, id, ev, "ADC", r.num); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *parser) parseDelays() (map[int]seq.DelayEvent, error) {
	out := map[int]seq.DelayEvent{}
	sec, ok := p.section("DELAYS")
	if !ok {
		return out, nil
	}
	if p.ver.AtLeast(1, 4) {
		return nil, fmt.Errorf("[DELAYS] is not part of version %s", p.ver)
	}

	for _, r := range sectionRows(sec) {
		if err := r.argc("DELAYS", 2); err != nil {
			return nil, err
		}
		id, err := r.int(0)
		if err != nil {
			return nil, err
		}
		d, err := r.float(1)
		if err != nil {
			return nil, err
		}
		if err := storeID(out, id, seq.DelayEvent{Duration: usDur(d)}, "DELAYS", r.num); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *parser) parseShapes() (map[int]*seq.Shape, error) {
	out := map[int]*seq.Shape{}
	sec, ok := p.section("SHAPES")
	if !ok || len(sec.lines) == 0 {
		return out, nil
	}

	var (
		id      int
		num     int
		vals    []float64
		started bool
	)
	flush := func(lineNum int) error {
		if !started {
			return nil
		}
		if num <= 0 {
			return fmt.Errorf("line %d: [SHAPES] shape %d lacks num_samples", lineNum, id)
		}
		if _, dup := out[id]; dup {
			return fmt.Errorf("line %d: [SHAPES] duplicate shape id %d", lineNum, id)
		}
		if p.ver.AtLeast(1, 4) && len(vals) == num {
			out[id] = seq.NewRawShape(id, vals)
		} else {
			out[id] = seq.NewShape(id, num, vals)
		}
		return nil
	}

	for _, l := range sec.lines {
		fields := strings.Fields(l.text)
		key := strings.ToLower(fields[0])
		switch {
		case key == "shape_id":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: [SHAPES] malformed shape_id", l.num)
			}
			if err := flush(l.num); err != nil {
				return nil, err
			}
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("line %d: [SHAPES] bad shape id %q", l.num, fields[1])
			}
			id, num, vals, started = v, 0, nil, true

		case key == "num_samples":
			if !started || len(fields) != 2 {
				return nil, fmt.Errorf("line %d: [SHAPES] stray num_samples", l.num)
			}
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("line %d: [SHAPES] bad num_samples %q", l.num, fields[1])
			}
			num = v

		default:
			if !started {
				return nil, fmt.Errorf("line %d: [SHAPES] sample before shape_id", l.num)
			}
			for i, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: field %d %q: not a number", l.num, i+1, f)
				}
				vals = append(vals, v)
			}
		}
	}
	if err := flush(sec.lines[len(sec.lines)-1].num); err != nil {
		return nil, err
	}
	return out, nil
}

// storeID inserts an event under its id, rejecting duplicates and the
// reserved id 0.
func storeID[T any](m map[int]T, id int, v T, section string, lineNum int) error {
	if id <= 0 {
		return fmt.Errorf("line %d: [%s] invalid id %d", lineNum, section, id)
	}
	if _, dup := m[id]; dup {
		return fmt.Errorf("line %d: [%s] duplicate id %d", lineNum, section, id)
	}
	m[id] = v
	return nil
}

// usDur converts a microsecond quantity from the file to a duration,
// rounding to the nanosecond.
func usDur(us float64) time.Duration {
	return time.Duration(math.Round(us * 1e3))
}

// nsDur converts a nanosecond quantity from the file to a duration.
func nsDur(ns float64) time.Duration {
	return time.Duration(math.Round(ns))
}

// secDur converts a seconds definition value to a duration.
func secDur(field string) (time.Duration, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: not a number", field)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%q: must be positive", field)
	}
	return time.Duration(math.Round(v * 1e9)), nil
}
