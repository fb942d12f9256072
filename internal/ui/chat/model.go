// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rfpchat/internal/export"
	"github.com/jeranaias/rfpchat/internal/transcript"
)

// Options configures the chat view.
type Options struct {
	// ConversationID opens an existing conversation. When empty a new one
	// is created with SectionKey and Title.
	ConversationID string
	SectionKey     string
	Title          string

	Theme     string
	Markdown  bool
	ShowStats bool
	FrameRate int

	// ExportDir receives Markdown exports; empty means the working directory.
	ExportDir string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat view. It renders the views a
// transcript.Controller publishes and turns key presses into controller
// calls.
type Model struct {
	ctrl   *transcript.Controller
	opts   Options
	keys   KeyMap
	styles Styles

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model

	life   *lifetime
	frames *frameLimiter
	md     *markdown

	convID      string
	view        transcript.View
	updates     <-chan transcript.View
	unsubscribe func()

	status   string
	width    int
	height   int
	ready    bool
	quitting bool
}

// New creates the chat view. Background sends run under ctx.
func New(ctx context.Context, ctrl *transcript.Controller, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about the proposal..."
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	styles := NewStyles(opts.Theme)
	ti.PromptStyle = styles.Prompt
	sp.Style = styles.Streaming

	return Model{
		ctrl:     ctrl,
		opts:     opts,
		keys:     DefaultKeyMap(),
		styles:   styles,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
		help:     help.New(),
		life:     newLifetime(ctx),
		frames:   newFrameLimiter(opts.FrameRate),
		md:       newMarkdown(opts.Markdown, opts.Theme),
	}
}

// ConversationID returns the conversation on screen.
func (m Model) ConversationID() string {
	return m.convID
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the input cursor and loads the conversation.
func (m Model) Init() tea.Cmd {
	ready := createCmd(m.life.context(), m.ctrl, m.opts.SectionKey, m.opts.Title)
	if m.opts.ConversationID != "" {
		ready = openCmd(m.life.context(), m.ctrl, m.opts.ConversationID)
	}
	return tea.Batch(textinput.Blink, m.spinner.Tick, ready)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ConversationReadyMsg:
		if msg.Err != nil {
			m.status = "Could not load conversation: " + msg.Err.Error()
			return m, nil
		}
		m.status = ""
		return m, m.attach(msg.Conversation.ID)

	case ViewMsg:
		if msg.src != m.updates {
			return m, nil // from a previous conversation
		}
		m.view = msg.View
		cmds = append(cmds, waitForView(m.updates))
		if m.view.Streaming {
			cmds = append(cmds, m.frames.mark())
		} else {
			m.refresh()
		}
		return m, tea.Batch(cmds...)

	case viewClosedMsg:
		return m, nil

	case StreamTickMsg:
		redraw, next := m.frames.onTick(m.view.Streaming)
		if redraw {
			m.refresh()
		}
		return m, next

	case SendResultMsg:
		m.status = sendStatus(msg.Err)
		return m, nil

	case ExportResultMsg:
		if msg.Err != nil {
			m.status = "Export failed: " + msg.Err.Error()
		} else {
			m.status = "Exported to " + msg.Path
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.life.end()
		m.ctrl.Shutdown()
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.convID != "" && m.ctrl.Cancel(m.convID) {
			m.status = "Reply stopped"
		}
		return m, nil

	case key.Matches(msg, m.keys.NewConversation):
		m.status = "Starting a new conversation..."
		return m, createCmd(m.life.context(), m.ctrl, m.opts.SectionKey, "")

	case key.Matches(msg, m.keys.Export):
		if m.view.Streaming {
			m.status = "Wait for the reply to finish before exporting"
			return m, nil
		}
		if len(m.view.Messages) == 0 {
			m.status = "Nothing to export yet"
			return m, nil
		}
		return m, exportCmd(m.view, m.opts.ExportDir)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		if m.convID == "" {
			m.status = "No conversation yet"
			return m, nil
		}
		if m.ctrl.State(m.convID) == transcript.Streaming {
			m.status = "A reply is still streaming (Esc to stop it)"
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		return m, sendCmd(m.life.context(), m.ctrl, m.convID, text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// attach subscribes to conversationID, replacing any earlier subscription.
func (m *Model) attach(conversationID string) tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	v, ch, unsubscribe := m.ctrl.Subscribe(conversationID)
	m.convID = conversationID
	m.view = v
	m.updates = ch
	m.unsubscribe = unsubscribe
	m.refresh()
	return waitForView(ch)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(height-4, 3)
	m.input.Width = max(width-4, 10)
	m.help.Width = width
	m.ready = true
	m.refresh()
}

// refresh re-renders the transcript into the viewport, following the
// bottom unless the user has scrolled up.
func (m *Model) refresh() {
	follow := m.viewport.AtBottom() || m.view.Streaming
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func waitForView(ch <-chan transcript.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return viewClosedMsg{src: ch}
		}
		return ViewMsg{View: v, src: ch}
	}
}

func sendCmd(ctx context.Context, ctrl *transcript.Controller, conversationID, text string) tea.Cmd {
	return func() tea.Msg {
		return SendResultMsg{ConversationID: conversationID, Err: ctrl.Send(ctx, conversationID, text)}
	}
}

func createCmd(ctx context.Context, ctrl *transcript.Controller, sectionKey, title string) tea.Cmd {
	return func() tea.Msg {
		conv, err := ctrl.NewConversation(ctx, sectionKey, title)
		return ConversationReadyMsg{Conversation: conv, Err: err}
	}
}

func openCmd(ctx context.Context, ctrl *transcript.Controller, conversationID string) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.Open(ctx, conversationID); err != nil {
			return ConversationReadyMsg{Err: err}
		}
		return ConversationReadyMsg{Conversation: ctrl.Snapshot(conversationID).Conversation}
	}
}

// exportCmd writes the finalized transcript of v as Markdown.
func exportCmd(v transcript.View, dir string) tea.Cmd {
	t := export.Transcript{Conversation: v.Conversation, Messages: v.Messages}
	return func() tea.Msg {
		opts := export.DefaultOptions()
		if dir != "" {
			opts.OutputDir = dir
		}
		path, err := export.ExportToFile(t, export.NewMarkdownExporter(opts), opts)
		return ExportResultMsg{Path: path, Err: err}
	}
}

// sendStatus describes how a send ended. Stream failures are shown from
// the view itself.
func sendStatus(err error) string {
	var streamErr *transcript.StreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transcript.ErrCancelled), errors.Is(err, context.Canceled):
		return "Reply stopped"
	case errors.As(err, &streamErr):
		return ""
	default:
		return err.Error()
	}
}
