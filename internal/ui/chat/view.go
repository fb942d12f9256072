// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rfpchat/internal/model"
)

// View renders the chat view.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.input.View(),
		m.renderStatusBar(),
	)
}

// =============================================================================
// HEADER AND STATUS
// =============================================================================

func (m Model) renderHeader() string {
	title := "rfpchat"
	if m.convID != "" {
		title = m.view.Conversation.DisplayTitle()
	}
	header := m.styles.Header.Render(title)
	if key := m.view.Conversation.SectionKey; key != "" {
		header += " " + m.styles.Section.Render("["+key+"]")
	}
	return truncateToWidth(header, m.width)
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.view.Streaming:
		left = m.spinner.View() + " " + m.styles.Streaming.Render("Streaming...")
	case m.status != "":
		left = m.status
	}
	return m.styles.StatusBar.Render(left + "  " + m.help.View(m.keys))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every message of the current view, followed by
// the view's error, if any.
func (m Model) renderTranscript() string {
	if len(m.view.Messages) == 0 && m.view.Err == nil {
		return m.styles.EmptyState.Render("No messages yet. Ask for a revision, a summary, or a compliance check.")
	}

	width := max(m.width-4, 20)
	var b strings.Builder
	for _, msg := range m.view.Messages {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(m.renderUserMessage(msg, width))
		case model.RoleAssistant:
			b.WriteString(m.renderAssistantMessage(msg, width))
		default:
			b.WriteString(m.styles.Notice.Render(msg.Content))
		}
		b.WriteString("\n\n")
	}
	if m.view.Err != nil {
		b.WriteString(m.styles.Error.Width(width).Render("! " + m.view.Err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderUserMessage(msg model.Message, width int) string {
	label := m.styles.UserLabel.Render(msg.Role.DisplayName()) + " " + m.styles.Stats.UnsetPaddingLeft().Render(formatTimestamp(msg.CreatedAt))
	return label + "\n" + m.styles.User.Width(width).Render(msg.Content)
}

func (m Model) renderAssistantMessage(msg model.Message, width int) string {
	label := m.styles.AsstLabel.Render(msg.Role.DisplayName())

	if msg.Streaming {
		return label + "\n" + m.styles.Assistant.Width(width).Render(msg.Content) + m.styles.Cursor.Render("_")
	}

	body := model.StripSectionUpdates(msg.Content)
	if m.md != nil && m.md.enabled {
		body = m.md.render(msg.ID, body, width)
	} else {
		body = m.styles.Assistant.Width(width).Render(body)
	}

	var lines []string
	lines = append(lines, label, strings.TrimRight(body, "\n"))
	for _, u := range model.SectionUpdates(msg.Content) {
		lines = append(lines, m.styles.Update.Render(fmt.Sprintf("+ %s updated (%d chars)", u.Key, len([]rune(u.Content)))))
	}
	if msg.Interrupted {
		lines = append(lines, m.styles.Notice.Render("(reply stopped)"))
	}
	if m.opts.ShowStats && msg.TotalDuration > 0 {
		lines = append(lines, m.styles.Stats.Render(msg.FormatStats()))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// MARKDOWN
// =============================================================================

// markdown renders finished replies with glamour, caching the output per
// message until the width changes.
type markdown struct {
	enabled bool
	style   string
	width   int
	r       *glamour.TermRenderer
	cache   map[string]string
}

func newMarkdown(enabled bool, theme string) *markdown {
	style := theme
	if style != "dark" && style != "light" {
		style = ""
	}
	return &markdown{enabled: enabled, style: style, cache: make(map[string]string)}
}

func (md *markdown) render(id, content string, width int) string {
	if width != md.width || md.r == nil {
		opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
		if md.style != "" {
			opts = append(opts, glamour.WithStandardStyle(md.style))
		} else {
			opts = append(opts, glamour.WithAutoStyle())
		}
		r, err := glamour.NewTermRenderer(opts...)
		if err != nil {
			md.enabled = false
			return content
		}
		md.r = r
		md.width = width
		clear(md.cache)
	}
	if out, ok := md.cache[id]; ok {
		return out
	}
	out, err := md.r.Render(content)
	if err != nil {
		return content
	}
	md.cache[id] = out
	return out
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatTimestamp formats a message time relative to now:
//   - Today: just time (e.g., "15:04")
//   - This week: day and time (e.g., "Mon 15:04")
//   - Older: date and time (e.g., "Jan 2 15:04")
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}
	return t.Format("Jan 2 15:04")
}

// truncateToWidth cuts s to at most width display cells.
func truncateToWidth(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
