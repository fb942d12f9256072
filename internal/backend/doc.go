// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the proposal workspace chat API.
//
// It creates and lists conversations, loads their history, and opens the
// streaming reply to a sent message. The stream body is exposed as a
// ChunkReader, which feeds sse.Stream.
//
// # Endpoints
//
//	POST /api/v1/projects/{pid}/conversations               create (201)
//	GET  /api/v1/projects/{pid}/conversations               list, newest first
//	GET  /api/v1/projects/{pid}/conversations/{cid}/messages history, oldest first
//	POST /api/v1/projects/{pid}/conversations/{cid}/messages send, text/event-stream
//
// # Errors
//
// Every failure is a *TransportError carrying the operation, the HTTP status
// and the backend's detail. It wraps one of ErrUnauthorized, ErrNotFound,
// ErrInvalidRequest, ErrRateLimited, ErrServer or ErrIdleTimeout where one
// applies.
//
// # Usage
//
//	client := backend.NewClient("http://localhost:8000").WithToken(token)
//	src, err := client.SendMessage(ctx, projectID, convID, "Summarize section L")
//	if err != nil {
//	    return err
//	}
//	stream := sse.NewStream(src, sse.WithErrorEvents())
package backend
