// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSendInProgress rejects a send while the conversation is streaming.
	// The transcript and the view's error flag are left untouched.
	ErrSendInProgress = errors.New("a reply is still streaming")

	// ErrEmptyMessage rejects a send with no visible text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUnknownConversation is returned for a conversation that was never
	// created or opened through the controller.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrCancelled is returned by Send when its session was abandoned with
	// Cancel, by switching conversations, or by Shutdown.
	ErrCancelled = errors.New("stream cancelled")
)

// StreamError is recorded in View.Err when a reply fails. The pending
// assistant content has been discarded; Partial reports how much was lost.
type StreamError struct {
	ConversationID string
	Partial        int // bytes of discarded content
	Err            error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial > 0 {
		return fmt.Sprintf("reply failed (partial content discarded: %d bytes): %v", e.Partial, e.Err)
	}
	return fmt.Sprintf("reply failed: %v", e.Err)
}

// Unwrap returns the underlying error, normally a *backend.TransportError.
func (e *StreamError) Unwrap() error {
	return e.Err
}
