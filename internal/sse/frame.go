// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import "strconv"

// =============================================================================
// FRAME TYPES
// =============================================================================

// FrameKind tags a decoded Frame.
type FrameKind int

const (
	// FrameData carries one text fragment.
	FrameData FrameKind = iota
	// FrameDone is the terminal marker; nothing follows it.
	FrameDone
	// FrameError reports a transport failure; nothing follows it.
	FrameError
)

// String returns the protocol name of the kind.
func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameDone:
		return "done"
	case FrameError:
		return "error"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Frame is one decoded protocol unit. Payload holds the text for FrameData
// and the failure detail for FrameError; it is empty for FrameDone.
type Frame struct {
	Kind    FrameKind
	Payload string
}

// Data returns a data frame carrying payload.
func Data(payload string) Frame {
	return Frame{Kind: FrameData, Payload: payload}
}

// Done returns the terminal frame.
func Done() Frame {
	return Frame{Kind: FrameDone}
}

// Error returns an error frame carrying detail.
func Error(detail string) Frame {
	return Frame{Kind: FrameError, Payload: detail}
}

// IsTerminal reports whether no frame may follow f.
func (f Frame) IsTerminal() bool {
	return f.Kind == FrameDone || f.Kind == FrameError
}

// String renders the frame for logs and test failures.
func (f Frame) String() string {
	switch f.Kind {
	case FrameDone:
		return "Done"
	case FrameData:
		return "Data(" + strconv.Quote(f.Payload) + ")"
	case FrameError:
		return "Error(" + strconv.Quote(f.Payload) + ")"
	default:
		return f.Kind.String()
	}
}
