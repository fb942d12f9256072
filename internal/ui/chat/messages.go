// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/rfpchat/internal/model"
	"github.com/jeranaias/rfpchat/internal/transcript"
)

// =============================================================================
// TRANSCRIPT MESSAGES
// =============================================================================

// ViewMsg carries a transcript view from a subscription.
type ViewMsg struct {
	View transcript.View
	src  <-chan transcript.View
}

// viewClosedMsg reports that a subscription channel closed.
type viewClosedMsg struct {
	src <-chan transcript.View
}

// SendResultMsg reports how a send ended.
type SendResultMsg struct {
	ConversationID string
	Err            error
}

// ExportResultMsg reports where a transcript export was written.
type ExportResultMsg struct {
	Path string
	Err  error
}

// ConversationReadyMsg reports a created or opened conversation.
type ConversationReadyMsg struct {
	Conversation model.Conversation
	Err          error
}

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamTickMsg redraws the transcript while a reply streams.
type StreamTickMsg struct {
	Time time.Time
}
