// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// FRAME LIMITER
// =============================================================================

// frameLimiter caps transcript redraws while a reply streams. Views that
// arrive between ticks only mark the transcript dirty; the next tick
// renders the newest one.
type frameLimiter struct {
	interval time.Duration
	dirty    bool
	ticking  bool
}

// newFrameLimiter returns a limiter for fps frames per second. Values
// outside 1..120 fall back to 30.
func newFrameLimiter(fps int) *frameLimiter {
	if fps <= 0 || fps > 120 {
		fps = 30
	}
	return &frameLimiter{interval: time.Second / time.Duration(fps)}
}

// mark records a new view. It returns a tick command when no tick is
// scheduled yet.
func (f *frameLimiter) mark() tea.Cmd {
	f.dirty = true
	if f.ticking {
		return nil
	}
	f.ticking = true
	return f.tick()
}

// onTick reports whether to redraw now and returns the next tick while
// streaming continues.
func (f *frameLimiter) onTick(streaming bool) (redraw bool, next tea.Cmd) {
	redraw = f.dirty
	f.dirty = false
	if streaming {
		return redraw, f.tick()
	}
	f.ticking = false
	return redraw, nil
}

func (f *frameLimiter) tick() tea.Cmd {
	return tea.Tick(f.interval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
