// Package policy implements the 'varscope policy' command family.
package policy

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/varscope/internal/cli/helpers"
	"github.com/coral-mesh/varscope/internal/disambig"
)

// NewPolicyCmd creates the policy command and its subcommands.
func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect disambiguation policy files",
	}
	cmd.AddCommand(newShowCmd())
	return cmd
}

// Row is one policy entry.
type Row struct {
	Section  string `json:"section" header:"SECTION"`
	Variable string `json:"variable" header:"VARIABLE"`
	Letter   string `json:"letter" header:"LETTER"`
	Type     string `json:"type,omitempty" header:"COERCE"`
}

// Rows flattens the entries of f.
func Rows(f *disambig.File) []Row {
	rows := make([]Row, 0, f.Len())
	for _, sec := range f.Sections {
		for _, e := range sec.Entries {
			rows = append(rows, Row{
				Section:  sec.Header(),
				Variable: e.Name,
				Letter:   e.Letter.String(),
				Type:     e.Type,
			})
		}
	}
	return rows
}

func newShowCmd() *cobra.Command {
	var (
		path   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Parse and print a policy file",
		Long: `Parse a policy file and print its entries. Malformed lines are skipped
and counted, exactly as they are when the policy is applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.RecordFormats); err != nil {
				return err
			}
			env, err := helpers.LoadEnv(cmd, nil)
			if err != nil {
				return err
			}
			f, err := disambig.ReadPolicy(path, env.Logger)
			if err != nil {
				return err
			}

			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			if err := formatter.Format(Rows(f), cmd.OutOrStdout()); err != nil {
				return err
			}
			if f.Malformed > 0 {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d malformed line(s) skipped\n", f.Malformed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "Policy file to read")
	_ = cmd.MarkFlagRequired("file")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.RecordFormats)
	return cmd
}
