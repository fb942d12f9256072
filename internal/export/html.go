// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/jeranaias/rfpchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a standalone HTML page with embedded
// CSS. Assistant replies are converted from Markdown with goldmark; raw HTML
// in replies is dropped.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts, md: goldmark.New()}
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	title := t.Conversation.DisplayTitle()

	theme := "dark"
	if e.options.Theme == "light" {
		theme = "light"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("    <meta name=\"generator\" content=\"rfpchat\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", e.options.now().Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(t))
	} else {
		fmt.Fprintf(&sb, "        <h1>%s</h1>\n", html.EscapeString(title))
	}

	sb.WriteString("        <main class=\"messages\">\n")
	for _, msg := range t.Messages {
		part, err := e.renderMessage(msg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(part)
	}
	sb.WriteString("        </main>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

func (e *HTMLExporter) renderHeader(t Transcript) string {
	conv := t.Conversation
	var sb strings.Builder

	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(&sb, "            <h1>%s</h1>\n", html.EscapeString(conv.DisplayTitle()))
	sb.WriteString("            <div class=\"metadata\">\n")
	if conv.SectionKey != "" {
		fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Section:</strong> %s</span>\n", html.EscapeString(conv.SectionKey))
	}
	if !conv.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(conv.CreatedAt))
	}
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(t.Messages))
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderMessage(msg model.Message) (string, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "            <div class=\"message %s-message\">\n", html.EscapeString(strings.ToLower(string(msg.Role))))
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(&sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(roleLabel(msg.Role)))
	if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.CreatedAt))
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("                <div class=\"message-content\">\n")

	if msg.Role != model.RoleAssistant {
		fmt.Fprintf(&sb, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(msg.Content), "\n", "<br>\n"))
	} else {
		var buf bytes.Buffer
		if err := e.md.Convert([]byte(model.StripSectionUpdates(msg.Content)), &buf); err != nil {
			return "", err
		}
		sb.Write(buf.Bytes())
		for _, u := range model.SectionUpdates(msg.Content) {
			sb.WriteString("                <div class=\"section-update\">\n")
			fmt.Fprintf(&sb, "                    <div class=\"section-key\">Updated section <code>%s</code></div>\n", html.EscapeString(u.Key))
			fmt.Fprintf(&sb, "                    <pre>%s</pre>\n", html.EscapeString(u.Content))
			sb.WriteString("                </div>\n")
		}
		if msg.Interrupted {
			sb.WriteString("                <p class=\"notice\">(reply stopped)</p>\n")
		}
	}
	sb.WriteString("                </div>\n")

	if stats := msg.FormatStats(); stats != "" && e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "                <div class=\"message-stats\">%s</div>\n", html.EscapeString(stats))
	}

	sb.WriteString("            </div>\n")
	return sb.String(), nil
}

const css = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", "Source Code Pro", monospace;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --border-color: #414868;
            --user-bg: #1f2335;
            --accent-blue: #7aa2f7;
            --accent-yellow: #e0af68;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --border-color: #e1e4e8;
            --user-bg: #f6f8fa;
            --accent-blue: #0366d6;
            --accent-yellow: #b08800;
        }

        body {
            font-family: var(--font-sans);
            font-size: 16px;
            line-height: 1.6;
            background: var(--bg-primary);
            color: var(--text-primary);
        }

        .container { max-width: 900px; margin: 0 auto; padding: 2rem 1rem; }
        .header { border-bottom: 1px solid var(--border-color); margin-bottom: 1.5rem; padding-bottom: 1rem; }
        .metadata { color: var(--text-muted); font-size: 0.875rem; display: flex; gap: 1rem; flex-wrap: wrap; }
        .message { border: 1px solid var(--border-color); border-radius: 8px; margin-bottom: 1rem; padding: 1rem; background: var(--bg-secondary); }
        .user-message { background: var(--user-bg); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 0.5rem; }
        .role-label { font-weight: 600; color: var(--accent-blue); }
        .timestamp, .message-stats, .notice { color: var(--text-muted); font-size: 0.8rem; }
        .message-content p { margin-bottom: 0.75rem; }
        pre, code { font-family: var(--font-mono); font-size: 0.875rem; }
        pre { white-space: pre-wrap; padding: 0.75rem; border-radius: 6px; background: var(--bg-primary); }
        .section-update { border-left: 3px solid var(--accent-yellow); padding-left: 0.75rem; margin-top: 0.75rem; }
        .section-key { color: var(--accent-yellow); font-size: 0.875rem; margin-bottom: 0.25rem; }
    </style>
`
