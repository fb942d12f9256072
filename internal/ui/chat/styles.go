// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// PALETTE
// =============================================================================

var (
	accent    = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	brand     = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	success   = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	danger    = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	warning   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	textMain  = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	textMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
	surface   = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}
)

// Styles holds the rendered styles of the chat view.
type Styles struct {
	Header     lipgloss.Style
	Section    lipgloss.Style
	User       lipgloss.Style
	UserLabel  lipgloss.Style
	Assistant  lipgloss.Style
	AsstLabel  lipgloss.Style
	Cursor     lipgloss.Style
	Stats      lipgloss.Style
	Notice     lipgloss.Style
	Error      lipgloss.Style
	Update     lipgloss.Style
	StatusBar  lipgloss.Style
	Streaming  lipgloss.Style
	Prompt     lipgloss.Style
	EmptyState lipgloss.Style
}

// NewStyles returns styles for a theme: "dark", "light" or "auto".
func NewStyles(theme string) Styles {
	switch theme {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	}

	return Styles{
		Header:     lipgloss.NewStyle().Bold(true).Foreground(brand).Background(surface).Padding(0, 1),
		Section:    lipgloss.NewStyle().Foreground(accent),
		User:       lipgloss.NewStyle().Foreground(textMain).PaddingLeft(2),
		UserLabel:  lipgloss.NewStyle().Bold(true).Foreground(brand),
		Assistant:  lipgloss.NewStyle().Foreground(textMain).PaddingLeft(2),
		AsstLabel:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		Cursor:     lipgloss.NewStyle().Foreground(accent).Blink(true),
		Stats:      lipgloss.NewStyle().Foreground(textMuted).Italic(true).PaddingLeft(2),
		Notice:     lipgloss.NewStyle().Foreground(warning).PaddingLeft(2),
		Error:      lipgloss.NewStyle().Foreground(danger).PaddingLeft(2),
		Update:     lipgloss.NewStyle().Foreground(success).PaddingLeft(2),
		StatusBar:  lipgloss.NewStyle().Foreground(textMuted).Padding(0, 1),
		Streaming:  lipgloss.NewStyle().Foreground(accent),
		Prompt:     lipgloss.NewStyle().Foreground(brand).Bold(true),
		EmptyState: lipgloss.NewStyle().Foreground(textMuted).Italic(true).Padding(1, 2),
	}
}
