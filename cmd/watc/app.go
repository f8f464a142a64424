package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/watc/engine"
	"github.com/wippyai/watc/internal/config"
	"github.com/wippyai/watc/wat"
)

// app carries the settings shared by every subcommand.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
	color  bool
}

// setup loads the config file, applies flag overrides and installs the
// logger.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if flags.Changed("color") {
		cfg.Color, _ = flags.GetString("color")
	}
	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if flags.Changed("max-diagnostics") {
		cfg.MaxDiagnostics, _ = flags.GetInt("max-diagnostics")
	}
	if flags.Changed("jobs") {
		cfg.Jobs, _ = flags.GetInt("jobs")
	}
	if flags.Changed("warnings-as-errors") {
		cfg.WarningsAsErrors, _ = flags.GetBool("warnings-as-errors")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	verbose, _ := flags.GetBool("verbose")
	log, err := newLogger(verbose)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.stdout = cmd.OutOrStdout()
	a.stderr = cmd.ErrOrStderr()
	a.color = cfg.UseColor(isTerminal(a.stderr))

	wat.SetLogger(log)
	engine.SetLogger(log)
	if cfg.Path != "" {
		log.Debug("loaded config", zap.String("path", cfg.Path))
	}
	return nil
}

func (a *app) teardown() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) compileOptions() []wat.Option {
	opts := []wat.Option{wat.WithMaxDiagnostics(a.cfg.MaxDiagnostics)}
	if a.cfg.WarningsAsErrors {
		opts = append(opts, wat.WithWarningsAsErrors())
	}
	return opts
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
