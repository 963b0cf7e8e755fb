// Package cli wires the varscope commands.
package cli

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/varscope/internal/cli/configcmd"
	"github.com/coral-mesh/varscope/internal/cli/graph"
	"github.com/coral-mesh/varscope/internal/cli/helpers"
	"github.com/coral-mesh/varscope/internal/cli/policy"
	"github.com/coral-mesh/varscope/internal/cli/walk"
	"github.com/coral-mesh/varscope/internal/cli/watch"
	"github.com/coral-mesh/varscope/internal/errors"
	"github.com/coral-mesh/varscope/pkg/version"
)

// NewRootCmd creates the varscope command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "varscope",
		Short: "Reflect the variables of a C or C++ program from its debug information",
		Long: `varscope reads the DWARF debug information of a binary and walks the
variables of a running or captured instance of it: globals, frame
parameters, locals and return values, following pointers into structs,
arrays and strings.

Where debug information cannot tell a pointer to one object from a pointer
to an array, a disambiguation policy decides. watch --generate-policy
learns one from a live process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String(helpers.FlagConfig, "", "Config file (default ~/.varscope/config.yaml)")
	cmd.PersistentFlags().String(helpers.FlagLogLevel, "", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(walk.NewWalkCmd())
	cmd.AddCommand(watch.NewWatchCmd())
	cmd.AddCommand(graph.NewGraphCmd())
	cmd.AddCommand(policy.NewPolicyCmd())
	cmd.AddCommand(configcmd.NewConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return reportable(NewRootCmd().Execute())
}

// reportable strips the wrapping context from a broken internal invariant
// so that it is reported on its own.
func reportable(err error) error {
	var violation *errors.ContractViolation
	if stderrors.As(err, &violation) {
		return violation
	}
	return err
}
