// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view for rfpchat.

The view is a Bubble Tea model driven by a transcript.Controller. It never
mutates the transcript itself: key presses become controller calls and the
screen is redrawn from the views the controller publishes.

# Key Components

## Model (model.go)

Holds the subscription to the active conversation, the input line, the
viewport and the status bar. Sends run as commands in the background and
report back with SendResultMsg.

## Rendering (view.go)

User and assistant messages with role labels, a cursor on the reply that is
still streaming, section update markers, interrupted replies, stream
statistics and the last error. Finished replies are rendered as markdown
with glamour.

## Streaming (streaming.go)

A frame limiter that redraws at most FrameRate times per second while a
reply streams. Views published between frames are coalesced.

# Key Bindings

  - Enter: send
  - Esc: stop the streaming reply (partial text is kept)
  - Ctrl+N: start a new conversation
  - PgUp/PgDn: scroll
  - Ctrl+C: quit
*/
package chat
