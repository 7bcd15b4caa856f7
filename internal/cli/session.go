package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/controls/internal/checks"
	"github.com/roach88/controls/internal/config"
	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/store"
)

// ConfigOptions holds the --config flag shared by every subcommand.
type ConfigOptions struct {
	*RootOptions
	ConfigPath string
}

func (o *ConfigOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", DefaultConfigPath, "path to the controls configuration file")
}

func (o *ConfigOptions) output(cmd *cobra.Command) *Output {
	return &Output{
		Format:  o.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: o.Verbose,
	}
}

// session is one opened configuration: the parsed file, its store and,
// when requested, an engine bound to the configured partition.
type session struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
}

// Close releases the store.
func (s *session) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// openStore loads the config and opens its database.
func openStore(ctx context.Context, path string) (*session, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &commandError{code: ErrCodeConfig, exit: ExitCommandError, msg: "failed to load config", err: err}
	}
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, &commandError{code: ErrCodeDatabase, exit: ExitCommandError, msg: "failed to open database", err: err}
	}
	slog.Debug("database ready", "driver", st.Driver(), "partition", cfg.Partition.String())
	return &session{cfg: cfg, store: st}, nil
}

// openSession is openStore plus an engine built from the declared checks.
// runIDs may be nil for the default UUIDv7 generator.
func openSession(ctx context.Context, path string, runIDs engine.RunIDGenerator) (*session, error) {
	s, err := openStore(ctx, path)
	if err != nil {
		return nil, err
	}

	set := engine.NewCheckSet()
	if err := checks.Build(set, s.cfg.Checks); err != nil {
		s.Close()
		return nil, &commandError{code: ErrCodeConfig, exit: ExitCommandError, msg: "failed to build checks", err: err}
	}
	policy, err := engine.ParseStalePolicy(s.cfg.StalePolicy)
	if err != nil {
		s.Close()
		return nil, &commandError{code: ErrCodeConfig, exit: ExitCommandError, msg: "failed to load config", err: err}
	}

	opts := []engine.Option{
		engine.WithLayout(s.cfg.Tables),
		engine.WithStalePolicy(policy),
	}
	if runIDs != nil {
		opts = append(opts, engine.WithRunIDGenerator(runIDs))
	}
	eng, err := engine.New(ctx, s.store, s.cfg.Partition, set, opts...)
	if err != nil {
		s.Close()
		return nil, classify(err)
	}
	s.engine = eng
	return s, nil
}
