// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rfpchat.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: Where the chat API lives and how to authenticate
//   - StreamConfig: Idle timeout and frame decoding limits for replies
//   - Duration: A time.Duration that reads and writes as "90s"
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RFPCHAT_*)
//   - ~/.rfpchat/config.toml (or the --config path)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := backend.NewClient(cfg.Backend.URL).WithToken(cfg.Backend.Token)
package config
