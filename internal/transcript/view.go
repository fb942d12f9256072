// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"github.com/jeranaias/rfpchat/internal/model"
)

// State is the per-conversation send state.
type State int

const (
	// Idle accepts a send.
	Idle State = iota
	// Streaming has one session in flight; sends are rejected.
	Streaming
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// View is an immutable snapshot of one conversation for display.
//
// Messages holds the finalized transcript in order. While Streaming, the
// last element is the pending assistant message with Streaming set.
type View struct {
	ConversationID string
	Conversation   model.Conversation
	Messages       []model.Message
	Streaming      bool

	// Err is the last recoverable failure; it clears on the next send.
	Err error
}

// State returns the view's send state.
func (v View) State() State {
	if v.Streaming {
		return Streaming
	}
	return Idle
}

// Pending returns the in-flight assistant message, if any.
func (v View) Pending() (model.Message, bool) {
	if !v.Streaming || len(v.Messages) == 0 {
		return model.Message{}, false
	}
	last := v.Messages[len(v.Messages)-1]
	return last, last.Streaming
}

// =============================================================================
// SUBSCRIBERS
// =============================================================================

// subscriber receives views on a latest-wins channel: a slow reader only
// ever misses intermediate views, never the most recent one.
type subscriber struct {
	ch chan View
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan View, 1)}
}

// offer replaces any unread view with v. Callers serialize offers.
func (s *subscriber) offer(v View) {
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}

func (s *subscriber) close() {
	close(s.ch)
}
