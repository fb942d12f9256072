// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"github.com/jeranaias/rfpchat/internal/model"
)

// JSONExporter exports transcripts to JSON. Message content is written as
// stored, section update tags included, so the export can be re-read.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonTranscript struct {
	Transcript
	SectionUpdates []model.SectionUpdate `json:"section_updates,omitempty"`
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	out := jsonTranscript{Transcript: t}
	for _, m := range t.Messages {
		if m.Role == model.RoleAssistant {
			out.SectionUpdates = append(out.SectionUpdates, model.SectionUpdates(m.Content)...)
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
