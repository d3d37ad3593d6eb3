// Package pulseq reads the Pulseq open file format, in both its text
// form (versions 1.2 through 1.4) and the binary container form, and
// registers adapters for each with the format registry.
package pulseq

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/pulseq-frame/disseqt/format"
	"github.com/pulseq-frame/disseqt/seq"
)

// Format names as they appear in the registry.
const (
	FormatText   = "pulseq"
	FormatBinary = "pulseq-bin"
)

func init() {
	format.Register(textAdapter{})
	format.Register(binaryAdapter{})
}

type textAdapter struct{}

func (textAdapter) Name() string { return FormatText }

// Sniff accepts data whose first meaningful byte opens a comment or a
// section header.
func (textAdapter) Sniff(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '#' || trimmed[0] == '[')
}

func (textAdapter) Parse(ctx context.Context, data []byte) (*seq.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ParseText(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return seq.Build(t)
}

type binaryAdapter struct{}

func (binaryAdapter) Name() string { return FormatBinary }

func (binaryAdapter) Sniff(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == binMagic
}

func (binaryAdapter) Parse(ctx context.Context, data []byte) (*seq.Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ParseBinary(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return seq.Build(t)
}
