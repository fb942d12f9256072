// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "github.com/charmbracelet/lipgloss"

// Output styles for non-interactive commands.
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#69DB7C"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#868E96"))
	LabelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#74C0FC")).Bold(true)
	UpdateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD43B"))
)
