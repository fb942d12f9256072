// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// readBufferSize is the largest chunk ChunkReader hands out.
const readBufferSize = 4096

// OpenStream posts body to path with Accept: text/event-stream and returns a
// reader over the response body. Non-2xx responses are returned as
// *TransportError with the backend's detail.
//
// The request lives until the reader is closed, ctx is cancelled, or the
// idle timeout fires.
func (c *Client) OpenStream(ctx context.Context, path string, body any) (*ChunkReader, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(reqCtx, http.MethodPost, path, body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// PERFORMANCE: Use shared streaming client with connection pooling (timeout handled via context)
	resp, err := c.send(OpOpenStream, c.streamClient, req)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		b, _ := readResponse(resp)
		return nil, handleErrorResponse(OpOpenStream, resp, b)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "text/event-stream" {
			c.log.Warn().Str("content_type", ct).Str("path", req.URL.Path).Msg("stream response is not text/event-stream")
		}
	}

	return newChunkReader(resp.Body, cancel, c.idleTimeout, c.log), nil
}

// =============================================================================
// CHUNK READER
// =============================================================================

// ChunkReader delivers the raw body of a streaming response one read at a
// time. It implements sse.ChunkSource.
//
// Next must not be called concurrently; Close may be called from any
// goroutine and unblocks a pending Next.
type ChunkReader struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	buf    []byte

	idle     time.Duration
	timer    *time.Timer
	timedOut atomic.Bool

	pending error // error returned together with the last bytes
	closed  atomic.Bool
	once    sync.Once

	received atomic.Int64
	log      zerolog.Logger
}

func newChunkReader(body io.ReadCloser, cancel context.CancelFunc, idle time.Duration, log zerolog.Logger) *ChunkReader {
	r := &ChunkReader{
		body:   body,
		cancel: cancel,
		buf:    make([]byte, readBufferSize),
		idle:   idle,
		log:    log,
	}
	if idle > 0 {
		r.timer = time.AfterFunc(idle, r.expire)
		r.timer.Stop()
	}
	return r
}

// Next blocks until the body yields bytes and returns a copy of them. It
// returns io.EOF at the end of the body, ctx's error on cancellation, and a
// *TransportError for read failures and idle timeouts.
func (r *ChunkReader) Next(ctx context.Context) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}
	if r.pending != nil {
		err := r.pending
		r.pending = nil
		return nil, r.classify(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Abort the body read if ctx ends while we are suspended.
	stop := context.AfterFunc(ctx, r.cancel)
	defer stop()

	for {
		r.arm()
		n, err := r.body.Read(r.buf)
		r.disarm()

		if n > 0 {
			r.received.Add(int64(n))
			chunk := make([]byte, n)
			copy(chunk, r.buf[:n])
			if err != nil {
				r.pending = err
			}
			return chunk, nil
		}
		if err != nil {
			return nil, r.classify(ctx, err)
		}
	}
}

// Close releases the connection. It is idempotent and safe to call while
// Next is blocked.
func (r *ChunkReader) Close() error {
	var err error
	r.once.Do(func() {
		r.closed.Store(true)
		if r.timer != nil {
			r.timer.Stop()
		}
		r.cancel()
		err = r.body.Close()
		r.log.Debug().Int64("bytes", r.received.Load()).Msg("stream closed")
	})
	return err
}

// Received returns the number of body bytes delivered so far.
func (r *ChunkReader) Received() int64 {
	return r.received.Load()
}

func (r *ChunkReader) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case ctx.Err() != nil:
		return ctx.Err()
	case r.timedOut.Load():
		return &TransportError{
			Op:     OpReadStream,
			Detail: fmt.Sprintf("no data received for %s", r.idle),
			Err:    ErrIdleTimeout,
		}
	case r.closed.Load():
		return ErrReaderClosed
	default:
		return &TransportError{Op: OpReadStream, Err: err}
	}
}

func (r *ChunkReader) arm() {
	if r.timer != nil {
		r.timer.Reset(r.idle)
	}
}

func (r *ChunkReader) disarm() {
	if r.timer != nil {
		r.timer.Stop()
	}
}

// expire fires when no bytes arrived within the idle timeout.
func (r *ChunkReader) expire() {
	r.timedOut.Store(true)
	r.log.Warn().Dur("idle_timeout", r.idle).Msg("stream idle timeout")
	r.cancel()
}
