// Package walk implements the 'varscope walk' command.
package walk

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/varscope/internal/cli/helpers"
	"github.com/coral-mesh/varscope/internal/session"
)

type options struct {
	binary   string
	snapshot string
	pid      int
	vars     []string
	function string
	thread   int
}

// NewWalkCmd creates the walk command.
func NewWalkCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Print the variables of a snapshot or a live process",
		Long: `Walk globals, and optionally the innermost frame of one thread, and print
one record per visited piece of state.

Every requested global is walked; with no --var, all globals are. With
--function, the innermost frame of --thread must belong to that function and
its parameters, locals and return value are walked too. Frames are only
available from snapshots.`,
		Example: `  varscope walk --binary ./app --snapshot app.snap
  varscope walk --binary ./app --snapshot app.snap --function tick --thread 1
  varscope walk --binary ./app --pid 4242 --var head --filter 'depth == 0' -o json`,
		Args: cobra.NoArgs,
	}

	helpers.AddBinaryFlag(cmd, &opts.binary)
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Snapshot file to read memory from")
	cmd.Flags().IntVar(&opts.pid, "pid", 0, "Live process to read memory from")
	cmd.Flags().StringSliceVar(&opts.vars, "var", nil, "Global to walk (repeatable)")
	cmd.Flags().StringVar(&opts.function, "function", "", "Also walk the innermost frame, which must belong to this function")
	cmd.Flags().IntVar(&opts.thread, "thread", 1, "Thread whose frame --function walks")
	cmd.MarkFlagsMutuallyExclusive("snapshot", "pid")
	cmd.MarkFlagsOneRequired("snapshot", "pid")
	overrides := helpers.AddOverrideFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd, opts, overrides)
	}
	return cmd
}

func run(cmd *cobra.Command, opts options, overrides *helpers.Overrides) error {
	env, err := helpers.LoadEnv(cmd, overrides)
	if err != nil {
		return err
	}
	if err := helpers.ValidateFormat(env.Config.Output.Format, helpers.RecordFormats); err != nil {
		return err
	}

	manager, err := env.NewManager()
	if err != nil {
		return err
	}
	sessOpts := env.SessionOptions(nil)
	sessOpts.Manager = manager
	s := session.New(sessOpts, env.Logger)
	defer func() {
		if err := s.Finish(); err != nil {
			env.Logger.Warn().Err(err).Msg("Failed to finish session")
		}
	}()

	if err := s.Build(cmd.Context(), opts.binary); err != nil {
		return err
	}

	var target *helpers.Target
	if opts.snapshot != "" {
		target, err = helpers.OpenSnapshot(s, opts.snapshot)
	} else {
		target, err = env.OpenProcess(opts.pid)
	}
	if err != nil {
		return err
	}

	sink, err := env.NewSink()
	if err != nil {
		return err
	}
	consume := sink.Consumer()

	if err := s.WalkGlobals(target.Globals, opts.vars, consume); err != nil {
		return err
	}

	if opts.function != "" {
		ectx, err := s.ThreadContext(opts.thread)
		if err != nil {
			return err
		}
		if ectx.Frame == nil || ectx.Frame.Name != opts.function {
			name := "an undescribed function"
			if ectx.Frame != nil {
				name = ectx.Frame.Name
			}
			return fmt.Errorf("innermost frame of thread %d is %s, not %s", opts.thread, name, opts.function)
		}
		if err := s.WalkFrame(ectx, consume); err != nil {
			return err
		}
	}

	return sink.Write(cmd.OutOrStdout(), helpers.OutputFormat(env.Config.Output.Format))
}
