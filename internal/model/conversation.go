// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"time"
)

// DefaultSectionLabel names the subject of a conversation with no section.
const DefaultSectionLabel = "proposal"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a chat thread scoped to a project and, optionally, to one
// proposal section. Conversations are created by the backend; the client
// never invents their IDs.
type Conversation struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Title      string    `json:"title"`
	SectionKey string    `json:"section_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DefaultTitle returns the title the backend assigns when none is given.
func DefaultTitle(sectionKey string) string {
	if sectionKey == "" {
		sectionKey = DefaultSectionLabel
	}
	return "Chat about " + sectionKey
}

// DisplayTitle returns Title, falling back to the default title.
func (c Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle(c.SectionKey)
}

// SectionScoped reports whether the conversation targets a single section.
func (c Conversation) SectionScoped() bool {
	return c.SectionKey != ""
}

// FormatAge returns a short relative age such as "5m ago".
func (c Conversation) FormatAge(now time.Time) string {
	d := now.Sub(c.CreatedAt)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(d.Hours()/24)) + "d ago"
	}
}

// =============================================================================
// TRANSCRIPT HELPERS
// =============================================================================

// CloneMessages returns an independent copy of msgs.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// LastAssistant returns the most recent assistant message, if any.
func LastAssistant(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return msgs[i], true
		}
	}
	return Message{}, false
}
