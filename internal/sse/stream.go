// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"io"
	"iter"

	"github.com/pkg/errors"
)

// ErrStreamClosed is reported by Err when the stream was abandoned with Close
// before reaching a terminal frame or end-of-stream.
var ErrStreamClosed = errors.New("stream closed")

// ChunkSource delivers the raw body of one response.
//
// Next blocks until bytes are available and returns io.EOF once the body
// ends. Chunks may split lines and code points anywhere. Close releases the
// underlying connection and may be called at any point.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is a finite, non-restartable, pull-based sequence of frames decoded
// from a ChunkSource.
//
// The stream only suspends inside ChunkSource.Next, and the context is only
// consulted there, so a chunk is never abandoned halfway through decoding.
// Next and Close must be called from the same goroutine; cancel the context
// to stop a stream from elsewhere.
type Stream struct {
	src   ChunkSource
	dec   *Decoder
	queue []Frame

	err       error
	ended     bool // no more pulls from src
	srcClosed bool
}

// NewStream wraps src. Options configure the underlying Decoder.
func NewStream(src ChunkSource, opts ...Option) *Stream {
	return &Stream{
		src: src,
		dec: NewDecoder(opts...),
	}
}

// Next returns the next frame, or false once the stream is over.
//
// A transport failure yields exactly one Error frame. Cancellation of ctx
// yields no frame; Err reports the cause. The source is closed as soon as
// the stream can produce nothing more.
func (s *Stream) Next(ctx context.Context) (Frame, bool) {
	for {
		if len(s.queue) > 0 {
			f := s.queue[0]
			s.queue = s.queue[1:]
			if f.IsTerminal() {
				s.queue = nil
				s.finish()
			}
			return f, true
		}
		if s.ended {
			return Frame{}, false
		}

		// Suspension point.
		if err := ctx.Err(); err != nil {
			s.abort(err)
			return Frame{}, false
		}

		chunk, err := s.src.Next(ctx)
		if ctx.Err() != nil {
			s.abort(ctx.Err())
			return Frame{}, false
		}
		if len(chunk) > 0 {
			s.queue = append(s.queue, s.dec.Feed(chunk)...)
		}

		switch {
		case err == nil:
			if s.dec.Finished() {
				s.finish()
			}
		case errors.Is(err, io.EOF):
			s.queue = append(s.queue, s.dec.Close()...)
			s.finish()
		default:
			if !s.dec.Finished() {
				s.err = err
				s.queue = append(s.queue, Error(err.Error()))
			}
			s.finish()
		}
	}
}

// Frames returns the remaining frames as an iterator. Breaking out of the
// loop closes the stream.
func (s *Stream) Frames(ctx context.Context) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for {
			f, ok := s.Next(ctx)
			if !ok {
				return
			}
			if !yield(f) {
				s.Close()
				return
			}
		}
	}
}

// Err returns the transport error behind an Error frame, the context error
// after cancellation, ErrStreamClosed after an early Close, or nil.
func (s *Stream) Err() error {
	return s.err
}

// Close abandons the stream and releases the source. Frames already decoded
// but not yet returned are dropped. Close is idempotent.
func (s *Stream) Close() error {
	if !s.ended && s.err == nil {
		s.err = ErrStreamClosed
	}
	s.queue = nil
	return s.finish()
}

// abort ends the stream without delivering anything still queued.
func (s *Stream) abort(cause error) {
	if s.err == nil {
		s.err = cause
	}
	s.queue = nil
	s.finish()
}

func (s *Stream) finish() error {
	s.ended = true
	if s.srcClosed {
		return nil
	}
	s.srcClosed = true
	return s.src.Close()
}
