// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeChunks feeds every chunk and then closes the decoder.
func decodeChunks(chunks []string, opts ...Option) []Frame {
	d := NewDecoder(opts...)
	var frames []Frame
	for _, c := range chunks {
		frames = append(frames, d.Feed([]byte(c))...)
	}
	return append(frames, d.Close()...)
}

func splitBytes(s string) []string {
	out := make([]string, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i:i+1])
	}
	return out
}

// =============================================================================
// FRAMING
// =============================================================================

func TestDecoder_ReassemblesSplitLines(t *testing.T) {
	got := decodeChunks([]string{"data: Hel", "lo\ndata: Wo", "rld\nevent: done\n"})
	assert.Equal(t, []Frame{Data("Hello"), Data("World"), Done()}, got)
}

func TestDecoder_TerminalMarkerSplitAcrossChunks(t *testing.T) {
	d := NewDecoder()

	assert.Empty(t, d.Feed([]byte("ev")))
	assert.False(t, d.Finished())

	got := d.Feed([]byte("ent: done\n"))
	assert.Equal(t, []Frame{Done()}, got)
	assert.True(t, d.Finished())
	assert.Empty(t, d.Close())
}

func TestDecoder_EndOfStreamWithoutMarker(t *testing.T) {
	got := decodeChunks([]string{"data: Hi\n"})
	assert.Equal(t, []Frame{Data("Hi")}, got)
}

func TestDecoder_UnterminatedFinalLine(t *testing.T) {
	got := decodeChunks([]string{"data: one\ndata: tw", "o"})
	assert.Equal(t, []Frame{Data("one"), Data("two")}, got)
}

func TestDecoder_ZeroLengthResponse(t *testing.T) {
	assert.Empty(t, decodeChunks(nil))
	assert.Empty(t, decodeChunks([]string{"", ""}))
}

func TestDecoder_EmptyAndPartialBoundaryChunks(t *testing.T) {
	d := NewDecoder()

	assert.Empty(t, d.Feed(nil))
	assert.Empty(t, d.Feed([]byte("data: a\r")))
	assert.Empty(t, d.Feed([]byte{}))
	assert.Equal(t, []Frame{Data("a")}, d.Feed([]byte("\n")))
	assert.Zero(t, d.Buffered())
}

func TestDecoder_IgnoresUnknownLines(t *testing.T) {
	got := decodeChunks([]string{
		": keep-alive\n",
		"id: 7\nretry: 3000\n",
		"\n",
		"event: ping\n",
		"data:no-space\n",
		"data: kept\n",
	})
	assert.Equal(t, []Frame{Data("kept")}, got)
}

func TestDecoder_PreservesPayloadWhitespace(t *testing.T) {
	got := decodeChunks([]string{"data:  leading\ndata: \ndata: trailing  \n"})
	assert.Equal(t, []Frame{Data(" leading"), Data(""), Data("trailing  ")}, got)
}

func TestDecoder_CRLFMatchesLF(t *testing.T) {
	lf := decodeChunks([]string{"data: a\ndata: b\nevent: done\n"})
	crlf := decodeChunks([]string{"data: a\r\ndata: b\r", "\nevent: done\r\n"})
	assert.Equal(t, lf, crlf)
}

func TestDecoder_DiscardsInputAfterDone(t *testing.T) {
	d := NewDecoder()

	got := d.Feed([]byte("data: a\nevent: done\ndata: b\n"))
	assert.Equal(t, []Frame{Data("a"), Done()}, got)

	assert.Empty(t, d.Feed([]byte("data: c\n")))
	assert.Empty(t, d.Close())
	assert.Zero(t, d.Buffered())
}

func TestDecoder_BackendWireFormat(t *testing.T) {
	// Exactly what the chat endpoint writes: blank separators and a
	// trailing data line after the marker.
	body := "data: The\n\ndata:  answer\n\ndata: .\n\nevent: done\ndata: {}\n\n"
	got := decodeChunks([]string{body})
	assert.Equal(t, []Frame{Data("The"), Data(" answer"), Data("."), Done()}, got)
}

// =============================================================================
// CHUNK-BOUNDARY INDEPENDENCE
// =============================================================================

func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	streams := []string{
		"data: Hello\ndata: World\nevent: done\n",
		"data: The\n\ndata:  answer\n\nevent: done\ndata: {}\n\n",
		": ping\ndata: x\r\ndata: y\r\n",
		"data: héllo wörld\ndata: 世界\ndata: 🎉🎉\nevent: done\n",
		"data: unterminated",
		"",
	}

	rng := rand.New(rand.NewSource(42))

	for _, stream := range streams {
		want := decodeChunks([]string{stream})

		assert.Equal(t, want, decodeChunks(splitBytes(stream)), "byte-at-a-time: %q", stream)

		for cut := 0; cut <= len(stream); cut++ {
			got := decodeChunks([]string{stream[:cut], stream[cut:]})
			require.Equal(t, want, got, "split at %d: %q", cut, stream)
		}

		for trial := 0; trial < 50; trial++ {
			var chunks []string
			rest := stream
			for len(rest) > 0 {
				n := 1 + rng.Intn(7)
				if n > len(rest) {
					n = len(rest)
				}
				chunks = append(chunks, rest[:n])
				rest = rest[n:]
			}
			require.Equal(t, want, decodeChunks(chunks), "random split %q", chunks)
		}
	}
}

// =============================================================================
// UTF-8
// =============================================================================

func TestDecoder_CarriesPartialCodePoint(t *testing.T) {
	d := NewDecoder()
	word := "世" // e4 b8 96

	assert.Empty(t, d.Feed([]byte("data: "+word[:1])))
	assert.Equal(t, len("data: "), d.Buffered(), "partial code point must not be decoded yet")

	assert.Empty(t, d.Feed([]byte(word[1:2])))
	got := d.Feed([]byte(word[2:] + "\n"))
	assert.Equal(t, []Frame{Data(word)}, got)
}

func TestDecoder_InvalidTailAtEndOfStream(t *testing.T) {
	got := decodeChunks([]string{"data: a\xe4"})
	assert.Equal(t, []Frame{Data("a\uFFFD")}, got)
}

// =============================================================================
// OPTIONS
// =============================================================================

func TestDecoder_ErrorEventsDisabledByDefault(t *testing.T) {
	got := decodeChunks([]string{"event: error\ndata: boom\n\n"})
	assert.Equal(t, []Frame{Data("boom")}, got)
}

func TestDecoder_ErrorEvents(t *testing.T) {
	got := decodeChunks([]string{"data: partial\n\nevent: error\ndata: rate limited\n\ndata: more\n"}, WithErrorEvents())
	assert.Equal(t, []Frame{Data("partial"), Error("rate limited")}, got)
}

func TestDecoder_ErrorEventWithoutDetail(t *testing.T) {
	got := decodeChunks([]string{"event: error\n"}, WithErrorEvents())
	assert.Equal(t, []Frame{Error(errorEventDetail)}, got)
}

func TestDecoder_MaxLineBytes(t *testing.T) {
	stream := "data: 0123456789\ndata: ok\ndata: abcdefghijklmnop\r\nevent: done\n"
	want := []Frame{Data("ok"), Done()}

	assert.Equal(t, want, decodeChunks([]string{stream}, WithMaxLineBytes(12)))
	assert.Equal(t, want, decodeChunks(splitBytes(stream), WithMaxLineBytes(12)))
}

func TestDecoder_MaxLineBytesDisabled(t *testing.T) {
	long := make([]byte, 2*DefaultMaxLineBytes)
	for i := range long {
		long[i] = 'x'
	}
	got := decodeChunks([]string{"data: " + string(long) + "\n"}, WithMaxLineBytes(0))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Payload, len(long))
}

func TestFrame_String(t *testing.T) {
	assert.Equal(t, `Data("a\n")`, Data("a\n").String())
	assert.Equal(t, "Done", Done().String())
	assert.Equal(t, `Error("x")`, Error("x").String())
	assert.True(t, Done().IsTerminal())
	assert.True(t, Error("").IsTerminal())
	assert.False(t, Data("").IsTerminal())
}
