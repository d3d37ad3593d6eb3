package pulseq

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pulseq-frame/disseqt/seq"
)

// line is one payload line of a section, with its position in the file
// for error reporting.
type line struct {
	num  int
	text string
}

// section collects the payload lines under one [HEADER].
type section struct {
	name  string
	lines []line
}

// splitSections cuts the text form into its sections. Comments run
// from '#' to end of line; blank lines separate nothing. Content
// before the first header, or an input without any header, is a
// malformed file.
func splitSections(data []byte) (map[string]*section, error) {
	secs := make(map[string]*section)
	var cur *section

	sc := bufio.NewScanner(bytes.NewReader(data))
	num := 0
	for sc.Scan() {
		num++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "[") {
			if !strings.HasSuffix(text, "]") {
				return nil, fmt.Errorf("%w: line %d: unterminated section header %q", seq.ErrMalformedHeader, num, text)
			}
			name := strings.ToUpper(strings.TrimSpace(text[1 : len(text)-1]))
			if name == "" {
				return nil, fmt.Errorf("%w: line %d: empty section header", seq.ErrMalformedHeader, num)
			}
			if s, ok := secs[name]; ok {
				cur = s
			} else {
				cur = &section{name: name}
				secs[name] = cur
			}
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("%w: line %d: content before first section", seq.ErrMalformedHeader, num)
		}
		cur.lines = append(cur.lines, line{num: num, text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", seq.ErrMalformedHeader, err)
	}
	if len(secs) == 0 {
		return nil, fmt.Errorf("%w: no sections", seq.ErrMalformedHeader)
	}
	return secs, nil
}

// row is one whitespace-separated table line.
type row struct {
	num    int
	fields []string
}

func sectionRows(sec *section) []row {
	rows := make([]row, 0, len(sec.lines))
	for _, l := range sec.lines {
		rows = append(rows, row{num: l.num, fields: strings.Fields(l.text)})
	}
	return rows
}

// argc checks the row against the field counts a version allows.
func (r row) argc(section string, counts ...int) error {
	for _, c := range counts {
		if len(r.fields) == c {
			return nil
		}
	}
	return fmt.Errorf("line %d: [%s] row has %d fields, want %v", r.num, section, len(r.fields), counts)
}

func (r row) int(i int) (int, error) {
	v, err := strconv.Atoi(r.fields[i])
	if err != nil {
		return 0, fmt.Errorf("line %d: field %d %q: not an integer", r.num, i+1, r.fields[i])
	}
	return v, nil
}

func (r row) i64(i int) (int64, error) {
	v, err := strconv.ParseInt(r.fields[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: field %d %q: not an integer", r.num, i+1, r.fields[i])
	}
	return v, nil
}

func (r row) float(i int) (float64, error) {
	v, err := strconv.ParseFloat(r.fields[i], 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: field %d %q: not a number", r.num, i+1, r.fields[i])
	}
	return v, nil
}
