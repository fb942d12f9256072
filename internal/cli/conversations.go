// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Listing conversations and their history.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rfpchat/internal/model"
)

const (
	idColumnWidth      = 36
	ageColumnWidth     = 9
	sectionColumnWidth = 22
)

func newConversationsCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List the project's conversations, newest first",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireProject(); err != nil {
				return err
			}
			convs, err := a.newClient().ListConversations(cmd.Context(), a.cfg.Backend.ProjectID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, convs)
			}
			width := 0
			if isTerminal(out) {
				width = terminalWidth(out)
			}
			printConversations(out, convs, time.Now(), width)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printConversations(w io.Writer, convs []model.Conversation, now time.Time, width int) {
	if len(convs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No conversations yet. Start one with: rfpchat chat"))
		return
	}

	// A width of zero leaves titles untruncated, as when piping.
	titleWidth := 0
	if width > 0 {
		titleWidth = max(width-idColumnWidth-ageColumnWidth-sectionColumnWidth-3, 10)
	}

	fmt.Fprintln(w, LabelStyle.Render(row("ID", "AGE", "SECTION", "TITLE", titleWidth)))
	for _, c := range convs {
		section := c.SectionKey
		if section == "" {
			section = "-"
		}
		fmt.Fprintln(w, row(c.ID, c.FormatAge(now), section, c.DisplayTitle(), titleWidth))
	}
}

// row lays out one table row, truncating by display width so wide
// characters in titles keep the columns aligned.
func row(id, age, section, title string, titleWidth int) string {
	if titleWidth > 0 {
		title = runewidth.Truncate(title, titleWidth, "…")
	}
	return strings.TrimRight(strings.Join([]string{
		runewidth.FillRight(id, idColumnWidth),
		runewidth.FillRight(age, ageColumnWidth),
		runewidth.FillRight(runewidth.Truncate(section, sectionColumnWidth, "…"), sectionColumnWidth),
		title,
	}, " "), " ")
}

func newHistoryCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history CONVERSATION_ID",
		Short: "Print a conversation's messages, oldest first",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireProject(); err != nil {
				return err
			}
			msgs, err := a.newClient().ListMessages(cmd.Context(), a.cfg.Backend.ProjectID, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, msgs)
			}
			printHistory(out, msgs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printHistory(w io.Writer, msgs []model.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No messages."))
		return
	}
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", LabelStyle.Render(m.Role.DisplayName()), DimStyle.Render(m.CreatedAt.Local().Format("Jan 2 15:04")))
		if m.Role != model.RoleAssistant {
			fmt.Fprintln(w, m.Content)
			continue
		}
		fmt.Fprintln(w, model.StripSectionUpdates(m.Content))
		for _, u := range model.SectionUpdates(m.Content) {
			fmt.Fprintln(w, UpdateStyle.Render(fmt.Sprintf("+ %s updated (%d chars)", u.Key, len([]rune(u.Content)))))
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
