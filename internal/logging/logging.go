// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger shared by rfpchat components.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options selects where and how logs are written.
type Options struct {
	Level  zerolog.Level
	Format string // "auto", "console" or "json"
	File   string

	// Output overrides stderr; used by tests.
	Output io.Writer
}

// New returns a logger for opts and a close function for the file sink,
// if any. The TUI owns the terminal, so callers running it should set File
// or raise Level to keep logs off the screen.
func New(opts Options) (zerolog.Logger, func() error, error) {
	closer := func() error { return nil }

	var w io.Writer = opts.Output
	if w == nil {
		w = os.Stderr
	}
	format := strings.ToLower(opts.Format)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return zerolog.Nop(), closer, errors.Wrap(err, "create log directory")
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return zerolog.Nop(), closer, errors.Wrap(err, "open log file")
		}
		w, closer = f, f.Close
		if format == "auto" || format == "" {
			format = "json"
		}
	}

	if useConsole(format, w) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(w).Level(opts.Level).With().Timestamp().Logger()
	return logger, closer, nil
}

// useConsole reports whether human-readable output should be used.
func useConsole(format string, w io.Writer) bool {
	switch format {
	case "console":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
