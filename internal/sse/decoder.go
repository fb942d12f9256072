// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// PROTOCOL CONSTANTS
// =============================================================================

const (
	// DataPrefix starts a line carrying one text fragment.
	DataPrefix = "data: "

	// DonePrefix starts the terminal marker line.
	DonePrefix = "event: done"

	// ErrorEventPrefix starts the line the backend writes before a failure
	// detail. Only recognized when the decoder is built WithErrorEvents.
	ErrorEventPrefix = "event: error"

	// DefaultMaxLineBytes bounds a single unterminated line (1 MiB).
	DefaultMaxLineBytes = 1 << 20

	// errorEventDetail is reported when an armed error event is never
	// followed by its data line.
	errorEventDetail = "backend reported an error"

	scratchSize = 4096
)

var (
	dataPrefix  = []byte(DataPrefix)
	donePrefix  = []byte(DonePrefix)
	errorPrefix = []byte(ErrorEventPrefix)
)

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	errorEvents  bool
	maxLineBytes int
}

// Option configures a Decoder or Stream.
type Option func(*options)

// WithErrorEvents makes an "event: error" line turn the next data line into
// an Error frame that ends the stream.
func WithErrorEvents() Option {
	return func(o *options) { o.errorEvents = true }
}

// WithMaxLineBytes drops lines longer than n bytes. Zero disables the limit.
func WithMaxLineBytes(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxLineBytes = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxLineBytes: DefaultMaxLineBytes}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns arbitrarily split chunks of an event stream into frames.
//
// It owns the decode buffer for exactly one stream: the decoded text after
// the last line boundary, plus any trailing bytes of an incomplete UTF-8
// sequence. A Decoder is not restartable and is not safe for concurrent use.
type Decoder struct {
	opts options

	text    transform.Transformer
	carry   []byte // undecoded tail of a split code point
	buf     []byte // decoded text after the last '\n'
	scratch []byte

	armedErr bool // saw ErrorEventPrefix, waiting for its data line
	overflow bool // discarding the rest of an overlong line
	finished bool
}

// NewDecoder creates a decoder for one stream.
func NewDecoder(opts ...Option) *Decoder {
	return &Decoder{
		opts:    buildOptions(opts),
		text:    unicode.UTF8.NewDecoder(),
		scratch: make([]byte, scratchSize),
	}
}

// Feed decodes chunk and returns every frame whose line is now complete,
// in arrival order. After a terminal frame all further input is ignored.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if d.finished || len(chunk) == 0 {
		return nil
	}
	d.decode(chunk, false)
	return d.drain()
}

// Close marks end-of-stream. The carried UTF-8 tail is flushed and the final
// unterminated segment is framed as a line. A missing terminal marker is not
// an error. Close is idempotent.
func (d *Decoder) Close() []Frame {
	if d.finished {
		return nil
	}
	d.decode(nil, true)
	frames := d.drain()

	if !d.finished {
		if len(d.buf) > 0 && !d.overflow {
			if f, ok := d.frameLine(d.buf); ok {
				frames = append(frames, f)
			}
		}
		if !d.finished && d.armedErr {
			frames = append(frames, Error(errorEventDetail))
		}
	}

	d.release()
	return frames
}

// Finished reports whether a terminal frame was produced or Close was called.
func (d *Decoder) Finished() bool {
	return d.finished
}

// Buffered returns the number of decoded bytes waiting for a line boundary.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// decode appends the UTF-8 text of chunk to the buffer. An incomplete
// multi-byte sequence at the end is kept in carry unless atEOF.
func (d *Decoder) decode(chunk []byte, atEOF bool) {
	src := chunk
	if len(d.carry) > 0 {
		src = append(d.carry, chunk...)
		d.carry = nil
	}

	for len(src) > 0 || atEOF {
		nDst, nSrc, err := d.text.Transform(d.scratch, src, atEOF)
		d.buf = append(d.buf, d.scratch[:nDst]...)
		src = src[nSrc:]

		switch err {
		case nil:
			return
		case transform.ErrShortDst:
			continue
		case transform.ErrShortSrc:
			d.carry = append([]byte(nil), src...)
			return
		default:
			// The UTF-8 decoder substitutes U+FFFD rather than failing, so
			// this is unreachable in practice.
			d.buf = append(d.buf, "\uFFFD"...)
			return
		}
	}
}

// drain frames every complete line in the buffer and keeps the remainder.
func (d *Decoder) drain() []Frame {
	var frames []Frame
	start := 0

	for !d.finished {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := d.buf[start : start+i]
		start += i + 1

		if d.overflow {
			d.overflow = false
			continue
		}
		if f, ok := d.frameLine(line); ok {
			frames = append(frames, f)
		}
	}

	if d.finished {
		d.release()
		return frames
	}

	d.buf = append(d.buf[:0], d.buf[start:]...)
	// +1 leaves room for a trailing '\r' that frameLine would trim.
	if d.opts.maxLineBytes > 0 && len(d.buf) > d.opts.maxLineBytes+1 {
		d.buf = d.buf[:0]
		d.overflow = true
	}
	return frames
}

// frameLine classifies one complete line.
func (d *Decoder) frameLine(line []byte) (Frame, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if d.opts.maxLineBytes > 0 && len(line) > d.opts.maxLineBytes {
		return Frame{}, false
	}

	switch {
	case bytes.HasPrefix(line, dataPrefix):
		payload := string(line[len(dataPrefix):])
		if d.armedErr {
			d.finished = true
			return Error(payload), true
		}
		return Data(payload), true

	case bytes.HasPrefix(line, donePrefix):
		d.finished = true
		return Done(), true

	case d.opts.errorEvents && bytes.HasPrefix(line, errorPrefix):
		d.armedErr = true
	}

	// Comments, keep-alives, blank separators and unknown fields.
	return Frame{}, false
}

func (d *Decoder) release() {
	d.finished = true
	d.buf = nil
	d.carry = nil
}
