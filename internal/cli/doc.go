// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rfpchat command line.
//
// Commands:
//
//	rfpchat chat [--conversation ID] [--section KEY] [--title T]
//	rfpchat ask [--conversation ID] [--section KEY] [--raw] MESSAGE...
//	rfpchat conversations [--json]
//	rfpchat history ID [--json]
//	rfpchat export ID [--format markdown|html|json] [--out DIR] [--stdout]
//	rfpchat serve-dev [--addr HOST:PORT] [--db FILE]
//	rfpchat config show|path|init|get|set
//
// Every command accepts --config and --log-level. Errors are printed once
// by Execute and mapped to the exit codes declared in errors.go.
package cli
