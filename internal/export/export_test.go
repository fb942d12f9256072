// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rfpchat/internal/model"
)

func sampleTranscript() Transcript {
	created := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	conv := model.Conversation{
		ID:         "c1",
		ProjectID:  "p1",
		SectionKey: "staffing",
		CreatedAt:  created,
	}
	user := model.Message{ID: "m1", ConversationID: "c1", Role: model.RoleUser, Content: "Make it <shorter>", CreatedAt: created}
	reply := model.Message{
		ID:             "m2",
		ConversationID: "c1",
		Role:           model.RoleAssistant,
		Content:        "Here is a **tighter** version.\n<section_update key=\"staffing\">Two engineers.</section_update>",
		CreatedAt:      created.Add(time.Minute),
	}
	return Transcript{Conversation: conv, Messages: []model.Message{user, reply}}
}

func fixedOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2025, 3, 5, 9, 30, 0, 0, time.UTC) }
	return opts
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(fixedOptions()).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: Chat about staffing\n"))
	assert.Contains(t, md, "section: staffing")
	assert.Contains(t, md, "# Chat about staffing")
	assert.Contains(t, md, "### [You]")
	assert.Contains(t, md, "### [Assistant]")
	assert.Contains(t, md, "[updated section: staffing]")
	assert.Contains(t, md, "> **Updated section `staffing`**\n>\n> Two engineers.")
	assert.NotContains(t, md, "<section_update")
	assert.Less(t, strings.Index(md, "[You]"), strings.Index(md, "[Assistant]"))
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := fixedOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "# Chat about staffing"))
	assert.NotContains(t, string(out), "<sub>")
}

func TestHTMLExporter(t *testing.T) {
	out, err := NewHTMLExporter(fixedOptions()).Export(sampleTranscript())
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<title>Chat about staffing</title>")
	assert.Contains(t, page, "dark-theme")
	assert.Contains(t, page, "Make it &lt;shorter&gt;")
	assert.Contains(t, page, "<strong>tighter</strong>")
	assert.Contains(t, page, "Updated section <code>staffing</code>")
	assert.NotContains(t, page, "<section_update")
}

func TestHTMLExporter_LightTheme(t *testing.T) {
	opts := fixedOptions()
	opts.Theme = "light"
	out, err := NewHTMLExporter(opts).Export(sampleTranscript())
	require.NoError(t, err)
	assert.Contains(t, string(out), `<body class="light-theme">`)
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)

	var decoded struct {
		Conversation   model.Conversation    `json:"conversation"`
		Messages       []model.Message       `json:"messages"`
		SectionUpdates []model.SectionUpdate `json:"section_updates"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "c1", decoded.Conversation.ID)
	require.Len(t, decoded.Messages, 2)
	assert.Contains(t, decoded.Messages[1].Content, "<section_update")
	assert.Equal(t, []model.SectionUpdate{{Key: "staffing", Content: "Two engineers."}}, decoded.SectionUpdates)
}

func TestExport_EmptyTranscript(t *testing.T) {
	for _, format := range []string{"md", "html", "json"} {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err)
		_, err = exp.Export(Transcript{})
		assert.ErrorIs(t, err, ErrEmptyTranscript, format)
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"markdown", ".md"},
		{"MD", ".md"},
		{"html", ".html"},
		{"htm", ".html"},
		{"json", ".json"},
	}
	for _, tt := range tests {
		exp, err := ForFormat(tt.format, nil)
		require.NoError(t, err, tt.format)
		assert.Equal(t, tt.ext, exp.FileExtension())
	}

	_, err := ForFormat("pdf", nil)
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	opts := fixedOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "exports")

	path, err := ExportToFile(sampleTranscript(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, "conversation_Chat_about_staffing_20250305_093000.md", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Chat about staffing")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Chat about staffing", "Chat_about_staffing"},
		{"a/b:c*d?", "a-b-c-d-"},
		{"", "conversation"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
