// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rfpchat/internal/backend"
	"github.com/jeranaias/rfpchat/internal/config"
	"github.com/jeranaias/rfpchat/internal/logging"
	"github.com/jeranaias/rfpchat/internal/sse"
	"github.com/jeranaias/rfpchat/internal/transcript"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command annotations read by the root command's setup.
const (
	// annotationNoConfig skips loading the config file; defaults are used.
	annotationNoConfig = "rfpchat/no-config"
	// annotationTUI sends logs to a file so they cannot corrupt the screen.
	annotationTUI = "rfpchat/tui"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	log      zerolog.Logger
	closeLog func() error
}

func newApp() *app {
	return &app{
		cfg: config.Default(),
		log: zerolog.Nop(),
	}
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	defer a.close()

	root := a.rootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		DisplayError(root.ErrOrStderr(), err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "rfpchat",
		Short: "Chat with the proposal assistant about an RFP response",
		Long: `rfpchat talks to the proposal backend's conversation API. Replies stream
into the terminal as they are generated, and section updates proposed by the
assistant are shown as they are stored.`,
		Version:           fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.rfpchat/config.toml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newChatCommand(a),
		newAskCommand(a),
		newConversationsCommand(a),
		newHistoryCommand(a),
		newExportCommand(a),
		newServeDevCommand(a),
		newConfigCommand(a),
	)
	return root
}

// setup loads the config and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if _, skip := cmd.Annotations[annotationNoConfig]; !skip {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	level := a.cfg.ZerologLevel()
	if a.logLevel != "" {
		parsed, err := zerolog.ParseLevel(a.logLevel)
		if err != nil {
			return &UsageError{Err: errors.Errorf("invalid --log-level %q", a.logLevel)}
		}
		level = parsed
	}

	opts := logging.Options{
		Level:  level,
		Format: a.cfg.Log.Format,
		File:   a.cfg.Log.File,
		Output: cmd.ErrOrStderr(),
	}
	if _, tui := cmd.Annotations[annotationTUI]; tui && opts.File == "" {
		path, err := defaultLogFile()
		if err != nil {
			opts.Output = io.Discard
		} else {
			opts.File = path
		}
	}

	log, closeLog, err := logging.New(opts)
	if err != nil {
		return &ConfigError{Path: opts.File, Err: err}
	}
	a.log = log
	a.closeLog = closeLog
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	path := a.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		path = p
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog()
		a.closeLog = nil
	}
}

func defaultLogFile() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "rfpchat.log"), nil
}

// =============================================================================
// BACKEND WIRING
// =============================================================================

func (a *app) newClient() *backend.Client {
	return backend.NewClient(a.cfg.Backend.URL).
		WithToken(a.cfg.Backend.Token).
		WithRequestTimeout(a.cfg.Backend.RequestTimeout.Duration).
		WithRateLimit(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst).
		WithIdleTimeout(a.cfg.Stream.IdleTimeout.Duration).
		WithLogger(a.log)
}

func (a *app) streamOptions() []sse.Option {
	opts := []sse.Option{sse.WithMaxLineBytes(a.cfg.Stream.MaxLineBytes)}
	if a.cfg.Stream.ErrorEvents {
		opts = append(opts, sse.WithErrorEvents())
	}
	return opts
}

func (a *app) newController(b transcript.Backend) *transcript.Controller {
	return transcript.New(b, a.cfg.Backend.ProjectID,
		transcript.WithLogger(a.log),
		transcript.WithStreamOptions(a.streamOptions()...),
	)
}

// requireProject fails early when no project is configured.
func (a *app) requireProject() error {
	if a.cfg.Backend.ProjectID == "" {
		return &ConfigError{Err: errors.Errorf("no project configured: set backend.project_id or %s", config.EnvProjectID)}
	}
	return nil
}
