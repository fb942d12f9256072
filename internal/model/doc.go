// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: a backend-created chat thread, optionally section scoped
//   - Message: one immutable transcript entry (user, assistant or system)
//   - Pending: an assistant message still receiving streamed fragments
//   - Statistics: time-to-first-fragment and duration of one stream
//   - SectionUpdate: a revised proposal section embedded in a reply
//
// # Usage
//
//	p := model.NewPending(conv.ID)
//	_ = p.AppendToken("Hel")
//	_ = p.AppendToken("lo")
//	msg := p.Finalize() // msg.Content == "Hello"
//	err := p.AppendToken("!") // ErrMessageFinalized
package model
