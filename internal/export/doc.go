// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package export writes conversation transcripts to files.

# Formats

  - Markdown: YAML frontmatter, one heading per message, section updates as
    block quotes under the reply that proposed them
  - HTML: standalone page with embedded CSS and a dark or light theme;
    replies are rendered from Markdown
  - JSON: the conversation, its messages as stored, and the extracted
    section updates

# Usage

	opts := export.DefaultOptions()
	exp, err := export.ForFormat("md", opts)
	path, err := export.ExportToFile(export.Transcript{
		Conversation: conv,
		Messages:     msgs,
	}, exp, opts)
*/
package export
