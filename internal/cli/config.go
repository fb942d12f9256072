// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command handlers.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rfpchat/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the config file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective config with tokens redacted",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				fmt.Fprint(cmd.OutOrStdout(), a.cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:         "path",
			Short:       "Print the config file path",
			Args:        exactArgs(0),
			Annotations: map[string]string{annotationNoConfig: ""},
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := a.resolveConfigPath()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		newConfigInitCommand(a),
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one config value, for example backend.url",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := a.cfg.Get(args[0])
				if err != nil {
					return &UsageError{Err: err}
				}
				if isSecretKey(args[0]) {
					v = "[REDACTED]"
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Set one config value and save the file",
			Example: `  rfpchat config set backend.url https://proposals.example.com
  rfpchat config set stream.idle_timeout 2m`,
			Args: exactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.resolveConfigPath()
				if err != nil {
					return err
				}
				// Start from the file alone so environment overrides are not persisted.
				cfg := config.Default()
				if _, err := os.Stat(path); err == nil {
					if err := config.LoadTOML(cfg, path); err != nil {
						return &ConfigError{Path: path, Err: err}
					}
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return &UsageError{Err: err}
				}
				if err := cfg.Validate(); err != nil {
					return &ConfigError{Path: path, Err: err}
				}
				if err := config.SaveTOML(cfg, path); err != nil {
					return &ConfigError{Path: path, Err: err}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s updated\n", SuccessStyle.Render("[OK]"), args[0])
				return nil
			},
		},
	)
	return cmd
}

func newConfigInitCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default config file",
		Args:        exactArgs(0),
		Annotations: map[string]string{annotationNoConfig: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &UsageError{Err: errors.Errorf("%s already exists (use --force to overwrite)", path)}
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return &ConfigError{Path: path, Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) resolveConfigPath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.HasSuffix(k, ".token")
}
