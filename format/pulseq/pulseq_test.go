package pulseq

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulseq-frame/disseqt/format"
)

func binFixture(t *testing.T) []byte {
	t.Helper()
	tab, err := ParseText(readFixture(t, "gre_v14.seq"))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, tab))
	return buf.Bytes()
}

func TestAdaptersRegistered(t *testing.T) {
	for _, name := range []string{FormatText, FormatBinary} {
		a, ok := format.Lookup(name)
		require.True(t, ok, name)
		require.Equal(t, name, a.Name())
	}
}

func TestSniff(t *testing.T) {
	text, _ := format.Lookup(FormatText)
	bin, _ := format.Lookup(FormatBinary)

	textData := readFixture(t, "gre_v14.seq")
	binData := binFixture(t)

	require.True(t, text.Sniff(textData))
	require.False(t, text.Sniff(binData))
	require.True(t, text.Sniff([]byte("\n\t [VERSION]")))
	require.False(t, text.Sniff(nil))
	require.False(t, text.Sniff([]byte("   ")))

	require.True(t, bin.Sniff(binData))
	require.False(t, bin.Sniff(textData))
	require.False(t, bin.Sniff([]byte{0x50, 0x53}))
}

func TestDetect(t *testing.T) {
	a, ok := format.Detect(readFixture(t, "gre_v14.seq"))
	require.True(t, ok)
	require.Equal(t, FormatText, a.Name())

	a, ok = format.Detect(binFixture(t))
	require.True(t, ok)
	require.Equal(t, FormatBinary, a.Name())

	_, ok = format.Detect([]byte("plain prose, not a sequence"))
	require.False(t, ok)
}

func TestAdapterParse(t *testing.T) {
	text, _ := format.Lookup(FormatText)
	s, err := text.Parse(context.Background(), readFixture(t, "gre_v14.seq"))
	require.NoError(t, err)
	require.Equal(t, 0.035, s.Duration())

	bin, _ := format.Lookup(FormatBinary)
	s, err = bin.Parse(context.Background(), binFixture(t))
	require.NoError(t, err)
	require.Equal(t, 0.035, s.Duration())
}

func TestAdapterParse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text, _ := format.Lookup(FormatText)
	_, err := text.Parse(ctx, readFixture(t, "gre_v14.seq"))
	require.ErrorIs(t, err, context.Canceled)
}
