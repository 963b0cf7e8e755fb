// Package watch implements the 'varscope watch' command.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/varscope/internal/cli/helpers"
	"github.com/coral-mesh/varscope/internal/constants"
	"github.com/coral-mesh/varscope/internal/privilege"
	"github.com/coral-mesh/varscope/internal/retry"
	"github.com/coral-mesh/varscope/internal/session"
	"github.com/coral-mesh/varscope/internal/traversal"
)

var refreshRetry = retry.Config{
	MaxRetries:     constants.RefreshRetries,
	InitialBackoff: constants.RefreshBackoff,
	Jitter:         0.1,
}

type options struct {
	binary         string
	pid            int
	vars           []string
	interval       time.Duration
	count          int
	generatePolicy string
	metricsAddr    string
	quiet          bool
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Walk a live process repeatedly, learning a disambiguation policy",
		Long: `Walk the globals of a live process every --interval until interrupted or
--count walks have run.

With --generate-policy, every walk records which pointers were seen non-null
and whether they reached one object or several. The learned policy is written
when watching stops. With --metrics-addr, traversal metrics are served for
Prometheus at /metrics.`,
		Example: `  varscope watch --binary ./app --pid 4242 --interval 500ms --generate-policy app.disambig
  varscope watch --binary ./app --pid 4242 --metrics-addr :9102 --quiet`,
		Args: cobra.NoArgs,
	}

	helpers.AddBinaryFlag(cmd, &opts.binary)
	cmd.Flags().IntVar(&opts.pid, "pid", 0, "Live process to watch")
	_ = cmd.MarkFlagRequired("pid")
	cmd.Flags().StringSliceVar(&opts.vars, "var", nil, "Global to walk (repeatable)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Time between walks (default from config)")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Stop after this many walks (0 for no limit)")
	cmd.Flags().StringVar(&opts.generatePolicy, "generate-policy", "", "Write the learned policy to this file on exit")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default from config)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print records")
	overrides := helpers.AddOverrideFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cmd, opts, overrides)
	}
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, opts options, overrides *helpers.Overrides) error {
	env, err := helpers.LoadEnv(cmd, overrides)
	if err != nil {
		return err
	}
	cfg := env.Config
	if opts.generatePolicy != "" {
		cfg.Disambig.GeneratePolicyFile = opts.generatePolicy
	}
	if opts.interval > 0 {
		cfg.Watch.Interval = opts.interval
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Watch.MetricsAddr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := helpers.ValidateFormat(cfg.Output.Format, helpers.RecordFormats); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := traversal.NewMetrics(reg)
	if cfg.Watch.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.Watch.MetricsAddr, reg, env.Logger)
		defer shutdown()
	}

	s := session.New(env.SessionOptions(metrics), env.Logger)
	if err := s.Build(ctx, opts.binary); err != nil {
		return err
	}
	target, err := env.OpenProcess(opts.pid)
	if err != nil {
		return err
	}
	sink, err := env.NewSink()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.quiet {
		out = io.Discard
	}

	walkErr := loop(ctx, cfg.Watch.Interval, opts.count, func(n int) error {
		if err := retry.Do(ctx, refreshRetry, target.Process.Refresh, retry.Transient); err != nil {
			return err
		}
		sink.Reset()
		if err := s.WalkGlobals(target.Globals, opts.vars, sink.Consumer()); err != nil {
			return err
		}
		if cfg.Output.Format == string(helpers.FormatText) {
			_, _ = fmt.Fprintln(out, helpers.Heading(fmt.Sprintf("walk %d at %s", n, time.Now().Format(time.TimeOnly))))
		}
		return sink.Write(out, helpers.OutputFormat(cfg.Output.Format))
	})

	if err := s.Finish(); err != nil {
		return errors.Join(walkErr, err)
	}
	if cfg.Disambig.GeneratePolicyFile != "" {
		// Under sudo the policy belongs to the invoking user.
		if err := privilege.FixFileOwnership(cfg.Disambig.GeneratePolicyFile); err != nil {
			env.Logger.Warn().Err(err).Msg("Failed to restore policy file ownership")
		}
	}
	return walkErr
}

// loop calls walk immediately and then on every tick, until ctx is done or
// count walks ran. Cancellation ends the loop without error.
func loop(ctx context.Context, interval time.Duration, count int, walk func(n int) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; count <= 0 || n <= count; n++ {
		if err := walk(n); err != nil {
			return err
		}
		if count > 0 && n == count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}
