// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMessageFinalized is returned when a token is appended to a message that
// has already been committed to the transcript.
var ErrMessageFinalized = errors.New("message already finalized")

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the roles the backend accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one transcript entry. Values handed out by the controller are
// snapshots; mutating them has no effect on the transcript.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Local state, never sent by the backend.
	Streaming   bool `json:"-"` // pending assistant message still receiving fragments
	Interrupted bool `json:"-"` // committed from a cancelled stream

	// Stream metrics (assistant messages only)
	FragmentCount int           `json:"-"`
	TTFT          time.Duration `json:"-"`
	TotalDuration time.Duration `json:"-"`
}

// NewMessage creates a finalized message with a locally generated ID.
func NewMessage(conversationID string, role Role, content string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewUserMessage creates the optimistic user entry for a send.
func NewUserMessage(conversationID, content string) Message {
	return NewMessage(conversationID, RoleUser, content)
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// FormatStats returns a formatted string of stream statistics.
func (m Message) FormatStats() string {
	if m.Role != RoleAssistant || m.TotalDuration == 0 {
		return ""
	}
	return formatStats(m.TotalDuration, m.FragmentCount, m.TTFT)
}

// =============================================================================
// PENDING MESSAGE
// =============================================================================

// Pending is an assistant message under construction. Its content grows
// monotonically as fragments arrive until Finalize or Interrupt commits it.
// A Pending is safe for concurrent use.
type Pending struct {
	mu sync.Mutex

	id             string
	conversationID string
	createdAt      time.Time

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	content strings.Builder
	stats   *Statistics

	final *Message
}

// NewPending starts an empty assistant message for conversationID.
func NewPending(conversationID string) *Pending {
	return &Pending{
		id:             uuid.NewString(),
		conversationID: conversationID,
		createdAt:      time.Now().UTC(),
		stats:          NewStatistics(),
	}
}

// ID returns the identity shared by the pending and finalized forms.
func (p *Pending) ID() string {
	return p.id
}

// AppendToken appends one fragment.
func (p *Pending) AppendToken(token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.final != nil {
		return ErrMessageFinalized
	}
	p.stats.RecordFirstToken()
	p.stats.CompletionTokens++
	p.content.WriteString(token)
	return nil
}

// Len returns the number of content bytes received so far.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content.Len()
}

// Snapshot returns the current state as a message with Streaming set, or the
// committed message once finalized.
func (p *Pending) Snapshot() Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.final != nil {
		return *p.final
	}
	return Message{
		ID:             p.id,
		ConversationID: p.conversationID,
		Role:           RoleAssistant,
		Content:        p.content.String(),
		CreatedAt:      p.createdAt,
		Streaming:      true,
		FragmentCount:  p.stats.CompletionTokens,
	}
}

// Finalize commits the accumulated content and returns the immutable
// message. Later calls return the same message.
func (p *Pending) Finalize() Message {
	return p.commit(false)
}

// Interrupt commits the partial content of a cancelled stream. It reports
// false, and commits nothing, when no content was received.
func (p *Pending) Interrupt() (Message, bool) {
	p.mu.Lock()
	empty := p.final == nil && p.content.Len() == 0
	p.mu.Unlock()
	if empty {
		return Message{}, false
	}
	return p.commit(true), true
}

// Finalized reports whether the message has been committed.
func (p *Pending) Finalized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.final != nil
}

func (p *Pending) commit(interrupted bool) Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.final != nil {
		return *p.final
	}

	p.stats.Finalize(p.stats.CompletionTokens)
	p.final = &Message{
		ID:             p.id,
		ConversationID: p.conversationID,
		Role:           RoleAssistant,
		Content:        p.content.String(),
		CreatedAt:      p.createdAt,
		Interrupted:    interrupted,
		FragmentCount:  p.stats.CompletionTokens,
		TTFT:           p.stats.TTFT,
		TotalDuration:  p.stats.TotalDuration,
	}
	p.content.Reset()
	return *p.final
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing and fragment count information for one stream.
type Statistics struct {
	// Timestamps
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	// CompletionTokens counts data fragments, not model tokens.
	CompletionTokens int

	// Derived metrics (computed on Finalize)
	TTFT            time.Duration
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStatistics creates a new Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// RecordFirstToken records when the first fragment was received.
func (s *Statistics) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes the final statistics.
func (s *Statistics) Finalize(tokenCount int) {
	s.EndTime = time.Now()
	s.CompletionTokens = tokenCount
	s.TotalDuration = s.EndTime.Sub(s.StartTime)

	if s.TotalDuration > 0 {
		s.TokensPerSecond = float64(tokenCount) / s.TotalDuration.Seconds()
	}
}

// Format returns a formatted string of the statistics.
func (s *Statistics) Format() string {
	return formatStats(s.TotalDuration, s.CompletionTokens, s.TTFT)
}

// formatStats renders "2.5s | 128 fragments | TTFT 234ms".
func formatStats(total time.Duration, fragments int, ttft time.Duration) string {
	var elapsed string
	if total < time.Second {
		elapsed = fmt.Sprintf("%dms", total.Milliseconds())
	} else {
		elapsed = fmt.Sprintf("%.1fs", total.Seconds())
	}
	return fmt.Sprintf("%s | %d fragments | TTFT %dms", elapsed, fragments, ttft.Milliseconds())
}
