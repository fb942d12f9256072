// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.

package cli

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rfpchat/internal/ui/chat"
)

type chatOptions struct {
	conversationID string
	sectionKey     string
	title          string
}

func newChatCommand(a *app) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat view",
		Long: `Open the interactive chat view.

Without --conversation a new conversation is created, scoped to --section
when given. Logs go to log.file, or ~/.rfpchat/rfpchat.log when unset.`,
		Example: `  rfpchat chat --section past_performance
  rfpchat chat --conversation 3f0c...`,
		Args:        exactArgs(0),
		Annotations: map[string]string{annotationTUI: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.conversationID, "conversation", "c", "", "open an existing conversation")
	flags.StringVarP(&opts.sectionKey, "section", "s", "", "scope a new conversation to a proposal section")
	flags.StringVar(&opts.title, "title", "", "title for a new conversation")
	return cmd
}

func (a *app) runChat(ctx context.Context, in io.Reader, out io.Writer, opts chatOptions) error {
	if err := a.requireProject(); err != nil {
		return err
	}

	client := a.newClient()
	ctrl := a.newController(client)
	defer ctrl.Shutdown()

	if opts.conversationID != "" {
		conv, err := findConversation(ctx, client, a.cfg.Backend.ProjectID, opts.conversationID)
		if err != nil {
			return err
		}
		ctrl.Track(conv)
		opts.conversationID = conv.ID
	}

	m := chat.New(ctx, ctrl, chat.Options{
		ConversationID: opts.conversationID,
		SectionKey:     opts.sectionKey,
		Title:          opts.title,
		Theme:          a.cfg.UI.Theme,
		Markdown:       a.cfg.UI.Markdown,
		ShowStats:      a.cfg.UI.ShowStats,
		FrameRate:      a.cfg.UI.FrameRate,
		ExportDir:      a.cfg.UI.ExportDir,
	})

	a.log.Info().Str("backend", client.BaseURL()).Str("project_id", ctrl.ProjectID()).Msg("starting chat")

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "chat view")
	}

	if fm, ok := final.(chat.Model); ok && fm.ConversationID() != "" {
		fmt.Fprintf(out, "Conversation %s\n", fm.ConversationID())
	}
	return nil
}
