// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Local development backend.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rfpchat/internal/server"
)

func newServeDevCommand(a *app) *cobra.Command {
	var addr, database string
	cmd := &cobra.Command{
		Use:   "serve-dev",
		Short: "Run a local backend with an echo assistant",
		Long: `Run a local backend that speaks the conversation API.

Conversations live in memory unless --db names a SQLite file. The
assistant echoes each message back a word at a time. In a section-scoped
conversation the reply also proposes a section update. A message starting
with /fail makes the reply fail halfway through.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Dev.Addr
			}
			if database == "" {
				database = a.cfg.Dev.Database
			}

			srv := server.New().WithLogger(a.log)
			if database != "" {
				st, err := server.OpenStore(database)
				if err != nil {
					return err
				}
				defer st.Close()
				srv.WithStore(st)
				a.log.Info().Str("database", database).Msg("using persistent store")
			}
			srv.WithProject(a.cfg.Dev.ProjectID).
				WithToken(a.cfg.Dev.Token).
				WithResponder(server.EchoResponder{Delay: a.cfg.Dev.TokenDelay.Duration})

			fmt.Fprintf(cmd.OutOrStdout(), "Serving project %s on http://%s\n", a.cfg.Dev.ProjectID, addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&database, "db", "", "SQLite file to keep conversations in (default dev.database, in memory when unset)")
	cmd.Flags().StringVar(&addr, "addr", "", fmt.Sprintf("listen address (default dev.addr, %s)", server.DefaultAddr))
	return cmd
}
