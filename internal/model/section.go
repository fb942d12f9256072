// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"regexp"
	"strings"
)

// sectionUpdateRE matches a revised section the assistant proposes, in the
// form <section_update key="KEY">...</section_update>.
var sectionUpdateRE = regexp.MustCompile(`(?s)<section_update\s+key="([^"]+)">(.*?)</section_update>`)

// SectionUpdate is a revised proposal section carried in an assistant reply.
type SectionUpdate struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// SectionUpdates extracts every complete section update from content, in
// order. Content is trimmed the way the backend stores new section versions.
// An unterminated tag, as seen mid-stream, is not returned.
func SectionUpdates(content string) []SectionUpdate {
	matches := sectionUpdateRE.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	updates := make([]SectionUpdate, 0, len(matches))
	for _, m := range matches {
		updates = append(updates, SectionUpdate{Key: m[1], Content: strings.TrimSpace(m[2])})
	}
	return updates
}

// StripSectionUpdates replaces each complete update tag with a one-line
// marker naming the section, leaving the surrounding explanation intact.
func StripSectionUpdates(content string) string {
	return sectionUpdateRE.ReplaceAllString(content, "[updated section: $1]")
}
