// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript keeps conversation transcripts consistent with the
// assistant replies streaming into them.
//
// A Controller owns one state machine per conversation:
//
//	Idle --Send--> Streaming --Done / end of stream--> Idle (reply committed)
//	                         --Error----------------> Idle (reply discarded, View.Err set)
//	                         --Cancel---------------> Idle (partial reply kept, Interrupted)
//
// Send while Streaming is rejected with ErrSendInProgress; it is never
// queued. The user message is appended optimistically before the backend
// answers.
//
// # Usage
//
//	ctrl := transcript.New(client, projectID, transcript.WithLogger(log))
//	conv, err := ctrl.NewConversation(ctx, "technical_approach", "")
//	view, updates, unsubscribe := ctrl.Subscribe(conv.ID)
//	defer unsubscribe()
//	go ctrl.Send(ctx, conv.ID, "Tighten the staffing paragraph")
//	for v := range updates {
//	    render(v)
//	}
package transcript
