// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export.go - Conversation export command.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rfpchat/internal/export"
)

func newExportCommand(a *app) *cobra.Command {
	var format, outDir string
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "export CONVERSATION_ID",
		Short: "Export a conversation to Markdown, HTML or JSON",
		Example: `  rfpchat export 3f0c... --format html --out ./exports
  rfpchat export 3f0c... --stdout > staffing.md`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireProject(); err != nil {
				return err
			}
			opts := export.DefaultOptions()
			opts.OutputDir = outDir
			if a.cfg.UI.Theme == "light" {
				opts.Theme = "light"
			}
			exp, err := export.ForFormat(format, opts)
			if err != nil {
				return &UsageError{Err: err}
			}

			ctx := cmd.Context()
			client := a.newClient()
			conv, err := findConversation(ctx, client, a.cfg.Backend.ProjectID, args[0])
			if err != nil {
				return err
			}
			msgs, err := client.ListMessages(ctx, a.cfg.Backend.ProjectID, conv.ID)
			if err != nil {
				return err
			}
			t := export.Transcript{Conversation: conv, Messages: msgs}

			if toStdout {
				data, err := exp.Export(t)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path, err := export.ExportToFile(t, exp, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s exported to %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "markdown", "markdown, html or json")
	flags.StringVarP(&outDir, "out", "o", ".", "output directory")
	flags.BoolVar(&toStdout, "stdout", false, "write to stdout instead of a file")
	return cmd
}
