package helpers

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/varscope/internal/config"
	"github.com/coral-mesh/varscope/internal/filter"
	"github.com/coral-mesh/varscope/internal/logging"
	"github.com/coral-mesh/varscope/internal/session"
	"github.com/coral-mesh/varscope/internal/traversal"
)

// Persistent root flag names.
const (
	FlagConfig   = "config"
	FlagLogLevel = "log-level"
)

// Env is the validated config and logger a command runs with.
type Env struct {
	Config *config.Config
	Logger zerolog.Logger
}

// LoadEnv loads the config named by --config (or the default location),
// applies flag overrides and --log-level, validates the result and builds
// a logger writing to the command's stderr.
func LoadEnv(cmd *cobra.Command, overrides *Overrides) (*Env, error) {
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString(FlagConfig); path != "" {
		loader = config.NewLoaderFor(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if overrides != nil {
		overrides.Apply(cfg)
	}
	if level, _ := cmd.Flags().GetString(FlagLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	return &Env{Config: cfg, Logger: logging.Component(logger, logging.ComponentCLI)}, nil
}

// SessionOptions converts the config for a session.
func (e *Env) SessionOptions(metrics *traversal.Metrics) session.Options {
	return session.Options{
		Traversal:          e.Config.Traversal.Options(),
		Disambig:           e.Config.Disambig.Options(),
		PolicyFile:         e.Config.Disambig.PolicyFile,
		GeneratePolicyFile: e.Config.Disambig.GeneratePolicyFile,
		Metrics:            metrics,
	}
}

// NewSink returns a record sink using the configured filter.
func (e *Env) NewSink() (*RecordSink, error) {
	f, err := filter.Compile(e.Config.Output.Filter)
	if err != nil {
		return nil, err
	}
	return &RecordSink{filter: f, logger: e.Logger}, nil
}
