// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes the chat backend's line-oriented event stream.
//
// The wire format is a chunked HTTP body of lines:
//
//	data: <UTF-8 text fragment>
//	...
//	event: done
//
// Lines matching neither prefix are ignored. Chunks delivered by the
// transport are not aligned to lines or to UTF-8 code points.
//
// # Key Types
//
//   - Frame: Data(text), Done, or Error(detail)
//   - Decoder: push-style core that owns the per-stream decode buffer
//   - Stream: pull iterator over a ChunkSource, one per response
//
// # Usage
//
//	stream := sse.NewStream(src)
//	for f := range stream.Frames(ctx) {
//	    switch f.Kind {
//	    case sse.FrameData:
//	        buf.WriteString(f.Payload)
//	    case sse.FrameError:
//	        return stream.Err()
//	    }
//	}
package sse
