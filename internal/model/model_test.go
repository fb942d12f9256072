// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// PENDING MESSAGE TESTS
// =============================================================================

func TestPending_ContentIsConcatenationOfFragments(t *testing.T) {
	p := NewPending("conv-1")
	fragments := []string{"The", " answer", " is", " 42", "."}

	var want strings.Builder
	for _, f := range fragments {
		require.NoError(t, p.AppendToken(f))
		want.WriteString(f)

		snap := p.Snapshot()
		assert.Equal(t, want.String(), snap.Content)
		assert.True(t, snap.Streaming)
		assert.Equal(t, RoleAssistant, snap.Role)
	}

	msg := p.Finalize()
	assert.Equal(t, "The answer is 42.", msg.Content)
	assert.Equal(t, p.ID(), msg.ID)
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.False(t, msg.Streaming)
	assert.False(t, msg.Interrupted)
	assert.Equal(t, len(fragments), msg.FragmentCount)
}

func TestPending_FinalizeIsIdempotent(t *testing.T) {
	p := NewPending("conv-1")
	require.NoError(t, p.AppendToken("Hi"))

	first := p.Finalize()
	second := p.Finalize()
	assert.Equal(t, first, second)
	assert.Equal(t, first, p.Snapshot())
	assert.True(t, p.Finalized())
}

func TestPending_AppendAfterFinalizeFails(t *testing.T) {
	p := NewPending("conv-1")
	require.NoError(t, p.AppendToken("Hi"))
	msg := p.Finalize()

	err := p.AppendToken(" there")
	assert.ErrorIs(t, err, ErrMessageFinalized)
	assert.Equal(t, msg, p.Finalize(), "finalized content must not change")
}

func TestPending_EmptyFinalize(t *testing.T) {
	msg := NewPending("conv-1").Finalize()
	assert.Empty(t, msg.Content)
	assert.Zero(t, msg.FragmentCount)
}

func TestPending_Interrupt(t *testing.T) {
	t.Run("with partial content", func(t *testing.T) {
		p := NewPending("conv-1")
		require.NoError(t, p.AppendToken("half an ans"))

		msg, ok := p.Interrupt()
		require.True(t, ok)
		assert.Equal(t, "half an ans", msg.Content)
		assert.True(t, msg.Interrupted)
		assert.ErrorIs(t, p.AppendToken("wer"), ErrMessageFinalized)
	})

	t.Run("without content", func(t *testing.T) {
		p := NewPending("conv-1")
		_, ok := p.Interrupt()
		assert.False(t, ok)
		assert.False(t, p.Finalized())
	})

	t.Run("after finalize", func(t *testing.T) {
		p := NewPending("conv-1")
		require.NoError(t, p.AppendToken("done"))
		final := p.Finalize()

		msg, ok := p.Interrupt()
		require.True(t, ok)
		assert.Equal(t, final, msg)
		assert.False(t, msg.Interrupted)
	})
}

func TestPending_ConcurrentSnapshots(t *testing.T) {
	p := NewPending("conv-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = p.Snapshot()
		}
	}()
	for i := 0; i < 200; i++ {
		require.NoError(t, p.AppendToken("x"))
	}
	wg.Wait()

	assert.Equal(t, 200, p.Len())
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("conv-1", "hello")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.NotEqual(t, msg.ID, NewUserMessage("conv-1", "hello").ID)
}

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"unicode", "日本語のテキスト", 5, "日本..."},
		{"tiny limit", "hello", 2, "he"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := Message{Content: tc.content}
			assert.Equal(t, tc.want, m.Preview(tc.max))
		})
	}
}

func TestMessage_FormatStats(t *testing.T) {
	m := Message{Role: RoleAssistant, FragmentCount: 12, TotalDuration: 2500 * time.Millisecond, TTFT: 234 * time.Millisecond}
	assert.Equal(t, "2.5s | 12 fragments | TTFT 234ms", m.FormatStats())

	m.TotalDuration = 400 * time.Millisecond
	assert.Equal(t, "400ms | 12 fragments | TTFT 234ms", m.FormatStats())

	assert.Empty(t, Message{Role: RoleUser, TotalDuration: time.Second}.FormatStats())
}

func TestRole(t *testing.T) {
	assert.Equal(t, "You", RoleUser.DisplayName())
	assert.Equal(t, "Assistant", RoleAssistant.DisplayName())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Chat about proposal", DefaultTitle(""))
	assert.Equal(t, "Chat about technical_approach", DefaultTitle("technical_approach"))

	c := Conversation{SectionKey: "past_performance"}
	assert.Equal(t, "Chat about past_performance", c.DisplayTitle())
	assert.True(t, c.SectionScoped())

	c.Title = "Pricing questions"
	assert.Equal(t, "Pricing questions", c.DisplayTitle())
}

func TestConversation_FormatAge(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tc := range tests {
		c := Conversation{CreatedAt: now.Add(-tc.ago)}
		assert.Equal(t, tc.want, c.FormatAge(now))
	}
}

func TestCloneMessages(t *testing.T) {
	assert.Nil(t, CloneMessages(nil))

	orig := []Message{{ID: "a", Content: "x"}}
	clone := CloneMessages(orig)
	clone[0].Content = "changed"
	assert.Equal(t, "x", orig[0].Content)
}

func TestLastAssistant(t *testing.T) {
	msgs := []Message{
		{ID: "1", Role: RoleUser},
		{ID: "2", Role: RoleAssistant},
		{ID: "3", Role: RoleUser},
	}
	m, ok := LastAssistant(msgs)
	require.True(t, ok)
	assert.Equal(t, "2", m.ID)

	_, ok = LastAssistant(msgs[:1])
	assert.False(t, ok)
}

// =============================================================================
// SECTION UPDATE TESTS
// =============================================================================

func TestSectionUpdates(t *testing.T) {
	content := "I tightened the wording.\n" +
		"<section_update key=\"technical_approach\">\n  Our approach is agile.\n</section_update>\n" +
		"And the staffing plan:\n" +
		"<section_update key=\"staffing\">Two engineers.</section_update>"

	updates := SectionUpdates(content)
	require.Len(t, updates, 2)
	assert.Equal(t, SectionUpdate{Key: "technical_approach", Content: "Our approach is agile."}, updates[0])
	assert.Equal(t, SectionUpdate{Key: "staffing", Content: "Two engineers."}, updates[1])

	stripped := StripSectionUpdates(content)
	assert.Contains(t, stripped, "[updated section: technical_approach]")
	assert.NotContains(t, stripped, "Our approach is agile.")
}

func TestSectionUpdates_Unterminated(t *testing.T) {
	assert.Nil(t, SectionUpdates(`<section_update key="x">still streaming`))
	assert.Nil(t, SectionUpdates("no tags"))
}
