// Package plot renders sequence waveforms as terminal column charts.
package plot

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/pulseq-frame/disseqt/seq"
)

// Options defines the configurable parameters for rendering waveforms.
type Options struct {
	From         float64  // window start in seconds
	To           float64  // window end; 0 means the full duration
	Width        int      // total columns; 0 = auto-detect
	Height       int      // rows above and below each axis; 0 = 3
	Channels     []string // subset of rf, gx, gy, gz, adc; empty = all
	ForceColor   bool
	ForceNoColor bool
	Out          io.Writer
	OutFile      *os.File
}

const labelWidth = 5

var allChannels = []string{"rf", "gx", "gy", "gz", "adc"}

// Run renders the selected channels of a sequence according to the
// provided options.
func Run(s *seq.Sequence, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	channels := opts.Channels
	if len(channels) == 0 {
		channels = allChannels
	}
	for _, ch := range channels {
		if !validChannel(ch) {
			return fmt.Errorf("invalid channel %q: must be one of %s", ch, strings.Join(allChannels, ", "))
		}
	}

	t0, t1 := opts.From, opts.To
	if t1 <= t0 {
		t1 = s.Duration()
	}
	if t1 <= t0 {
		return fmt.Errorf("empty plot window [%g, %g]", t0, t1)
	}

	height := opts.Height
	if height <= 0 {
		height = 3
	}
	width := determineWidth(opts.OutFile, opts.Width)
	cols := width - labelWidth
	if cols < 10 {
		cols = 10
	}

	useColor := resolveColorChoice(opts)

	lines := []string{fmt.Sprintf("%s  %s .. %s", strings.Repeat(" ", labelWidth-2), formatSeconds(t0), formatSeconds(t1))}
	for _, ch := range channels {
		panel, err := renderChannel(s, ch, t0, t1, cols, height, useColor)
		if err != nil {
			return err
		}
		lines = append(lines, panel...)
	}

	return writeLines(opts.Out, lines)
}

func validChannel(ch string) bool {
	for _, known := range allChannels {
		if ch == known {
			return true
		}
	}
	return false
}

// renderChannel builds one panel: bar rows above the axis, the labeled
// axis row, bar rows below.
func renderChannel(s *seq.Sequence, ch string, t0, t1 float64, cols, height int, useColor bool) ([]string, error) {
	if ch == "adc" {
		return renderADC(s, t0, t1, cols, useColor)
	}

	// Midpoint sampling keeps every query strictly inside the window.
	times := make([]float64, cols)
	step := (t1 - t0) / float64(cols)
	for i := range times {
		times[i] = t0 + (float64(i)+0.5)*step
	}

	var values []float64
	switch ch {
	case "rf":
		samples, err := s.SampleRF(times)
		if err != nil {
			return nil, err
		}
		values = make([]float64, len(samples))
		for i, rf := range samples {
			values[i] = rf.Amplitude
		}
	default:
		var err error
		values, err = s.SampleGradient(gradChannel(ch), times)
		if err != nil {
			return nil, err
		}
	}

	peak := 0.0
	for _, v := range values {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	norm := make([]float64, len(values))
	if peak > 0 {
		for i, v := range values {
			norm[i] = v / peak
		}
	}

	color := channelColor(ch)
	var lines []string
	for row := height; row >= 1; row-- {
		lines = append(lines, barRow(norm, row, height, false, color, useColor))
	}
	lines = append(lines, axisRow(ch, peak, cols, useColor))
	for row := 1; row <= height; row++ {
		lines = append(lines, barRow(norm, row, height, true, color, useColor))
	}
	return lines, nil
}

func barRow(norm []float64, row, height int, negative bool, color string, useColor bool) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", labelWidth))
	threshold := (float64(row) - 0.5) / float64(height)
	for _, v := range norm {
		if negative {
			v = -v
		}
		if v >= threshold {
			b.WriteString("█")
		} else {
			b.WriteByte(' ')
		}
	}
	if useColor {
		return colorize(color, b.String())
	}
	return b.String()
}

func axisRow(label string, peak float64, cols int, useColor bool) string {
	pad := label
	if len(pad) < labelWidth {
		pad += strings.Repeat(" ", labelWidth-len(pad))
	}
	axis := strings.Repeat("─", cols)
	note := ""
	if peak > 0 {
		note = " peak " + strconv.FormatFloat(peak, 'g', 4, 64)
	}
	if useColor {
		return colorize(ansiLabel, pad) + colorize(ansiAxis, axis) + colorize(ansiAxis, note)
	}
	return pad + axis + note
}

func renderADC(s *seq.Sequence, t0, t1 float64, cols int, useColor bool) ([]string, error) {
	marks := make([]bool, cols)
	count := 0
	for ts := range s.AdcEvents() {
		if ts < t0 || ts >= t1 {
			continue
		}
		col := int((ts - t0) / (t1 - t0) * float64(cols))
		if col >= cols {
			col = cols - 1
		}
		marks[col] = true
		count++
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", labelWidth))
	for _, m := range marks {
		if m {
			b.WriteString("│")
		} else {
			b.WriteByte(' ')
		}
	}
	row := b.String()
	if useColor {
		row = colorize(ansiADC, row)
	}

	pad := "adc" + strings.Repeat(" ", labelWidth-3)
	axis := strings.Repeat("─", cols)
	note := fmt.Sprintf(" %d samples", count)
	axisLine := pad + axis + note
	if useColor {
		axisLine = colorize(ansiLabel, pad) + colorize(ansiAxis, axis) + colorize(ansiAxis, note)
	}
	return []string{row, axisLine}, nil
}

func gradChannel(ch string) seq.Channel {
	switch ch {
	case "gy":
		return seq.ChannelY
	case "gz":
		return seq.ChannelZ
	default:
		return seq.ChannelX
	}
}

func formatSeconds(t float64) string {
	return strconv.FormatFloat(t, 'g', 6, 64) + "s"
}

func determineWidth(out *os.File, width int) int {
	if width > 0 {
		return width
	}
	if out != nil {
		if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if colsStr := os.Getenv("COLUMNS"); colsStr != "" {
		if v, err := strconv.Atoi(colsStr); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func writeLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

const (
	ansiReset = "\x1b[0m"
	ansiLabel = "\x1b[1;97m"
	ansiAxis  = "\x1b[38;5;240m"
	ansiRF    = "\x1b[38;5;44m"
	ansiGrad  = "\x1b[38;5;220m"
	ansiADC   = "\x1b[38;5;207m"
)

func colorize(code string, text string) string {
	return code + text + ansiReset
}

func channelColor(ch string) string {
	if ch == "rf" {
		return ansiRF
	}
	return ansiGrad
}

func resolveColorChoice(opts Options) bool {
	if opts.ForceColor {
		return true
	}
	if opts.ForceNoColor {
		return false
	}
	return shouldUseColorAuto(opts.Out)
}

func shouldUseColorAuto(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
