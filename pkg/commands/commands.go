// Package commands provides the storeops CLI commands.
//
// The root command loads configuration and builds the logger before any
// subcommand runs:
//
//	cmd := commands.NewRootCmd()
//	if err := cmd.Execute(); err != nil {
//	    os.Exit(1)
//	}
//
// Tests inject a preloaded config, a test logger and fake store dialers via
// the Root options.
package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/storeops/storeops/config"
	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/pkg/logger"
	"github.com/storeops/storeops/store/docstore"
	"github.com/storeops/storeops/store/relstore"
)

// app holds the state shared by all subcommands. Config and logger are
// resolved once in the root command's PersistentPreRunE.
type app struct {
	cfgPath string
	cfg     *config.Config
	lggr    logger.Logger
	deps    *Deps
}

// RootOption configures the root command. Used by tests to inject a config,
// logger and fake store dialers.
type RootOption func(*app)

// WithConfig skips config file loading and uses cfg directly.
func WithConfig(cfg *config.Config) RootOption {
	return func(a *app) {
		a.cfg = cfg
	}
}

// WithLogger skips logger construction and uses lggr directly.
func WithLogger(lggr logger.Logger) RootOption {
	return func(a *app) {
		a.lggr = lggr
	}
}

// WithDeps overrides the store dialers.
func WithDeps(deps *Deps) RootOption {
	return func(a *app) {
		a.deps = deps
	}
}

// NewRootCmd creates the storeops root command with all subcommands.
func NewRootCmd(opts ...RootOption) *cobra.Command {
	a := &app{deps: &Deps{}}
	for _, opt := range opts {
		opt(a)
	}
	a.deps.applyDefaults()

	cmd := &cobra.Command{
		Use:               "storeops",
		Short:             "Run ordered operation sequences against document and relational stores",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().
		StringVarP(&a.cfgPath, "config", "c", "storeops.yml", "Path to the config file")

	cmd.AddCommand(newRunCmd(a), newWatchCmd(a), newOpsCmd(a))

	return cmd
}

// setup resolves the config and logger unless a test injected them.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.cfg == nil {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	if a.lggr == nil {
		level, err := zapcore.ParseLevel(a.cfg.Log.Level)
		if err != nil {
			return err
		}

		lggr, err := (&logger.Config{Level: level}).New()
		if err != nil {
			return err
		}
		a.lggr = lggr
	}

	return nil
}

// registry returns the full operation catalog of both store backends.
func (a *app) registry() *operations.OperationRegistry {
	r := operations.NewOperationRegistry()
	docstore.Register(r)
	relstore.Register(r)

	return r
}

// reporter builds the Reporter per config: a JSON lines file reporter when a
// report file is configured, an in-memory reporter otherwise. The returned
// cleanup flushes and closes the file reporter.
func (a *app) reporter() (operations.Reporter, func(), error) {
	if a.cfg.Report.File == "" {
		return operations.NewMemoryReporter(), func() {}, nil
	}

	fr, err := operations.NewFileReporter(a.cfg.Report.File)
	if err != nil {
		return nil, nil, err
	}

	return fr, func() {
		if cerr := fr.Close(); cerr != nil {
			a.lggr.Errorw("Failed to close report file", "error", cerr)
		}
	}, nil
}
