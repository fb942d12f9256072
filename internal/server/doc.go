// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a development backend for the proposal chat API.
//
// It serves the same routes, status codes, error bodies and event stream
// format as the production backend, so the client can be exercised without
// a language model. Data lives in memory, or in a SQLite file when the
// store comes from OpenStore.
//
// # Endpoints
//
//   - GET  /health
//   - POST /api/v1/projects/{project_id}/conversations
//   - GET  /api/v1/projects/{project_id}/conversations
//   - GET  /api/v1/projects/{project_id}/conversations/{conv_id}/messages
//   - POST /api/v1/projects/{project_id}/conversations/{conv_id}/messages
//
// Replies stream as "data: <token>" events and end with "event: done" or,
// when the Responder fails, "event: error". The assistant message is stored
// only when the reply completes.
//
// # Usage
//
//	srv := server.New().
//		WithProject(projectID).
//		WithToken("dev-token").
//		WithResponder(server.EchoResponder{Delay: 30 * time.Millisecond}).
//		WithLogger(log)
//	err := srv.ListenAndServe(ctx, "127.0.0.1:8000")
package server
