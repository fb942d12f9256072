// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/rfpchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown. Section updates are
// listed after the reply that proposed them.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	conv := t.Conversation
	title := conv.DisplayTitle()

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "conversation_id: %s\n", conv.ID)
		fmt.Fprintf(&sb, "project_id: %s\n", conv.ProjectID)
		if conv.SectionKey != "" {
			fmt.Fprintf(&sb, "section: %s\n", escapeYAML(conv.SectionKey))
		}
		if !conv.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", conv.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: rfpchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, msg := range t.Messages {
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", roleLabel(msg.Role), formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		}

		if msg.Role != model.RoleAssistant {
			sb.WriteString(strings.TrimSpace(msg.Content))
			sb.WriteString("\n\n")
		} else {
			sb.WriteString(strings.TrimSpace(model.StripSectionUpdates(msg.Content)))
			sb.WriteString("\n\n")
			for _, u := range model.SectionUpdates(msg.Content) {
				fmt.Fprintf(&sb, "> **Updated section `%s`**\n>\n", u.Key)
				for _, line := range strings.Split(u.Content, "\n") {
					fmt.Fprintf(&sb, "> %s\n", line)
				}
				sb.WriteString("\n")
			}
			if msg.Interrupted {
				sb.WriteString("*(reply stopped)*\n\n")
			}
			if stats := msg.FormatStats(); stats != "" && e.options.IncludeMetadata {
				fmt.Fprintf(&sb, "<sub>Stats: %s</sub>\n\n", stats)
			}
		}

		// Add separator between messages (except last)
		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
