package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/varscope/internal/config"
)

// AddFormatFlag adds a standard --format/-o flag to a command.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s)", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	})
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}
	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}

// AddBinaryFlag adds the required --binary flag.
func AddBinaryFlag(cmd *cobra.Command, binaryVar *string) {
	cmd.Flags().StringVarP(binaryVar, "binary", "b", "", "Path to the binary carrying debug information")
	_ = cmd.MarkFlagRequired("binary")
	_ = cmd.MarkFlagFilename("binary")
}

// Overrides are the config settings that walk and watch accept as flags.
// Only flags set on the command line override the loaded config.
type Overrides struct {
	fs *pflag.FlagSet

	maxStructDepth     int
	maxNestingDepth    int
	arrayLengthLimit   int
	flattenArrays      bool
	outputStructVars   bool
	doubleAlignmentFix bool

	policyFile             string
	allPointersSingle      bool
	functionPointersSingle bool

	format string
	filter string
}

// AddOverrideFlags registers the override flags on fs.
func AddOverrideFlags(fs *pflag.FlagSet) *Overrides {
	o := &Overrides{fs: fs}
	defaults := config.DefaultConfig()

	fs.IntVar(&o.maxStructDepth, "max-struct-depth", defaults.Traversal.MaxStructDepth, "Times one struct type may be entered from a root")
	fs.IntVar(&o.maxNestingDepth, "max-nesting-depth", defaults.Traversal.MaxNestingDepth, "Struct levels entered from a root (0 for unlimited)")
	fs.IntVar(&o.arrayLengthLimit, "array-length-limit", defaults.Traversal.ArrayLengthLimit, "Cap on scanned sequence length (0 for unlimited)")
	fs.BoolVar(&o.flattenArrays, "flatten-arrays", defaults.Traversal.FlattenArrays, "Split small fixed array members into one variable per element")
	fs.BoolVar(&o.outputStructVars, "output-struct-vars", defaults.Traversal.OutputStructVars, "Emit records for struct containers")
	fs.BoolVar(&o.doubleAlignmentFix, "double-alignment-fix", defaults.Traversal.DoubleAlignmentFix, "Correct 4-byte aligned double members")

	fs.StringVar(&o.policyFile, "policy", "", "Disambiguation policy file to read")
	fs.BoolVar(&o.allPointersSingle, "all-pointers-single", false, "Treat every pointer as one object")
	fs.BoolVar(&o.functionPointersSingle, "function-pointers-single", false, "Treat pointers from parameters and return values as one object")

	fs.StringVarP(&o.format, "format", "o", string(FormatText), "Output format (text, json, csv)")
	fs.StringVar(&o.filter, "filter", "", "CEL expression selecting records, e.g. 'depth == 0'")
	return o
}

// Apply copies every flag set on the command line into cfg.
func (o *Overrides) Apply(cfg *config.Config) {
	o.fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "max-struct-depth":
			cfg.Traversal.MaxStructDepth = o.maxStructDepth
		case "max-nesting-depth":
			cfg.Traversal.MaxNestingDepth = o.maxNestingDepth
		case "array-length-limit":
			cfg.Traversal.ArrayLengthLimit = o.arrayLengthLimit
		case "flatten-arrays":
			cfg.Traversal.FlattenArrays = o.flattenArrays
		case "output-struct-vars":
			cfg.Traversal.OutputStructVars = o.outputStructVars
		case "double-alignment-fix":
			cfg.Traversal.DoubleAlignmentFix = o.doubleAlignmentFix
		case "policy":
			cfg.Disambig.PolicyFile = o.policyFile
		case "all-pointers-single":
			cfg.Disambig.AllPointersSingle = o.allPointersSingle
		case "function-pointers-single":
			cfg.Disambig.FunctionPointersSingle = o.functionPointersSingle
		case "format":
			cfg.Output.Format = o.format
		case "filter":
			cfg.Output.Filter = o.filter
		}
	})
}
