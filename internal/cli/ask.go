// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rfpchat/internal/backend"
	"github.com/jeranaias/rfpchat/internal/model"
	"github.com/jeranaias/rfpchat/internal/transcript"
)

type askOptions struct {
	conversationID string
	sectionKey     string
	title          string
	raw            bool
}

func newAskCommand(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [flags] MESSAGE...",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the assistant's reply.

Without --conversation a new conversation is created. When stdout is a
terminal and markdown is enabled the finished reply is rendered as
markdown; otherwise it is streamed as it arrives.`,
		Example: `  rfpchat ask "Summarize the evaluation criteria"
  rfpchat ask --section technical_approach "Tighten the staffing paragraph"
  rfpchat ask --conversation 3f0c... "Now shorten it"`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.conversationID, "conversation", "c", "", "continue an existing conversation")
	flags.StringVarP(&opts.sectionKey, "section", "s", "", "scope a new conversation to a proposal section")
	flags.StringVar(&opts.title, "title", "", "title for a new conversation")
	flags.BoolVar(&opts.raw, "raw", false, "stream the reply as plain text")
	return cmd
}

func (a *app) runAsk(ctx context.Context, out io.Writer, text string, opts askOptions) error {
	if strings.TrimSpace(text) == "" {
		return &UsageError{Err: transcript.ErrEmptyMessage}
	}
	if err := a.requireProject(); err != nil {
		return err
	}

	client := a.newClient()
	ctrl := a.newController(client)
	defer ctrl.Shutdown()

	id, err := a.startConversation(ctx, client, ctrl, opts.conversationID, opts.sectionKey, opts.title)
	if err != nil {
		return err
	}

	p := &replyPrinter{out: out}
	if !opts.raw && a.cfg.UI.Markdown && isTerminal(out) {
		p.markdown = true
		p.width = terminalWidth(out)
	}

	_, updates, unsubscribe := ctrl.Subscribe(id)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Send(ctx, id, text)
	}()

	for {
		select {
		case v, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			p.progress(v)
		case err := <-done:
			return p.finish(ctrl.Snapshot(id), err)
		}
	}
}

// startConversation opens conversationID, or creates a conversation when it
// is empty, and returns the conversation to send to.
func (a *app) startConversation(ctx context.Context, client *backend.Client, ctrl *transcript.Controller, conversationID, sectionKey, title string) (string, error) {
	if conversationID == "" {
		conv, err := ctrl.NewConversation(ctx, sectionKey, title)
		if err != nil {
			return "", err
		}
		return conv.ID, nil
	}

	conv, err := findConversation(ctx, client, a.cfg.Backend.ProjectID, conversationID)
	if err != nil {
		return "", err
	}
	ctrl.Track(conv)
	if err := ctrl.Open(ctx, conv.ID); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// findConversation looks conversationID up in the project's listing.
func findConversation(ctx context.Context, client *backend.Client, projectID, conversationID string) (model.Conversation, error) {
	convs, err := client.ListConversations(ctx, projectID)
	if err != nil {
		return model.Conversation{}, err
	}
	for _, c := range convs {
		if strings.EqualFold(c.ID, conversationID) {
			return c, nil
		}
	}
	return model.Conversation{}, errors.Wrapf(backend.ErrNotFound, "conversation %s", conversationID)
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

// replyPrinter writes a streaming reply. In plain mode each view's new
// content is written as it arrives; in markdown mode the reply is rendered
// once it is complete.
type replyPrinter struct {
	out      io.Writer
	markdown bool
	width    int
	printed  int
}

func (p *replyPrinter) progress(v transcript.View) {
	if p.markdown {
		return
	}
	if pending, ok := v.Pending(); ok {
		p.write(pending.Content)
	}
}

func (p *replyPrinter) write(content string) {
	if len(content) > p.printed {
		fmt.Fprint(p.out, content[p.printed:])
		p.printed = len(content)
	}
}

func (p *replyPrinter) finish(final transcript.View, err error) error {
	if err != nil && !errors.Is(err, transcript.ErrCancelled) && !errors.Is(err, context.Canceled) {
		if p.printed > 0 {
			fmt.Fprintln(p.out)
		}
		return err
	}

	reply, ok := model.LastAssistant(final.Messages)
	if !ok || (err != nil && !reply.Interrupted) {
		return err
	}

	if p.markdown {
		fmt.Fprint(p.out, renderMarkdown(model.StripSectionUpdates(reply.Content), p.width))
	} else {
		p.write(reply.Content)
		fmt.Fprintln(p.out)
	}

	for _, u := range model.SectionUpdates(reply.Content) {
		fmt.Fprintln(p.out, UpdateStyle.Render(fmt.Sprintf("+ %s updated (%d chars)", u.Key, len([]rune(u.Content)))))
	}
	if reply.Interrupted {
		fmt.Fprintln(p.out, DimStyle.Render("(reply stopped)"))
	}
	return err
}

// renderMarkdown renders content for a terminal, falling back to the plain
// text if glamour fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content + "\n"
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}

// minArgs is cobra.MinimumNArgs reporting a UsageError.
func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// exactArgs is cobra.ExactArgs reporting a UsageError.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}
