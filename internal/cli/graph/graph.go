// Package graph implements the 'varscope graph' command family, which
// inspects the debug information of a binary without reading any memory.
package graph

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/varscope/internal/cli/helpers"
	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/session"
	"github.com/coral-mesh/varscope/internal/symtab"
)

// NewGraphCmd creates the graph command and its subcommands.
func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the debug information of a binary",
	}

	cmd.AddCommand(newDumpCmd())
	cmd.AddCommand(newListCmd("functions", "List functions with code", functionRows))
	cmd.AddCommand(newListCmd("globals", "List global variables", globalRows))
	cmd.AddCommand(newListCmd("types", "List types", typeRows))
	return cmd
}

func build(cmd *cobra.Command, binary string) (*session.Session, error) {
	env, err := helpers.LoadEnv(cmd, nil)
	if err != nil {
		return nil, err
	}
	s := session.New(env.SessionOptions(nil), env.Logger)
	if err := s.Build(cmd.Context(), binary); err != nil {
		return nil, err
	}
	return s, nil
}

func newDumpCmd() *cobra.Command {
	var binary string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every linked debug entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := build(cmd, binary)
			if err != nil {
				return err
			}
			return Dump(s.Graph(), cmd.OutOrStdout())
		},
	}
	helpers.AddBinaryFlag(cmd, &binary)
	return cmd
}

// Dump writes one line per entry, indented by nesting level.
func Dump(g *dwarfgraph.Graph, w io.Writer) error {
	bw := bufio.NewWriter(w)
	var err error
	g.Each(func(r dwarfgraph.Ref, e *dwarfgraph.Entry) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(bw, "%s%s\n", strings.Repeat("  ", e.Level), g.Describe(r))
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func newListCmd(use, short string, rows func(*symtab.Program) any) *cobra.Command {
	var (
		binary string
		format string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.RecordFormats); err != nil {
				return err
			}
			s, err := build(cmd, binary)
			if err != nil {
				return err
			}
			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			return formatter.Format(rows(s.Program()), cmd.OutOrStdout())
		},
	}
	helpers.AddBinaryFlag(cmd, &binary)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.RecordFormats)
	return cmd
}

// FunctionRow describes one function.
type FunctionRow struct {
	Name   string `json:"name" header:"NAME"`
	File   string `json:"file" header:"FILE"`
	LowPC  string `json:"low_pc" header:"LOW_PC"`
	HighPC string `json:"high_pc" header:"HIGH_PC"`
	Params int    `json:"params" header:"PARAMS"`
	Locals int    `json:"locals" header:"LOCALS"`
	Return string `json:"return,omitempty" header:"RETURNS"`
}

func functionRows(prog *symtab.Program) any {
	rows := make([]FunctionRow, 0, len(prog.Functions()))
	for _, f := range prog.Functions() {
		row := FunctionRow{
			Name:   f.Name,
			File:   f.Filename,
			LowPC:  fmt.Sprintf("%#x", f.LowPC),
			HighPC: fmt.Sprintf("%#x", f.HighPC),
			Params: len(f.Params),
			Locals: len(f.Locals),
			Return: "void",
		}
		if f.Return != nil {
			row.Return = declared(prog, f.Return)
		}
		rows = append(rows, row)
	}
	return rows
}

// GlobalRow describes one global variable.
type GlobalRow struct {
	Name    string `json:"name" header:"NAME"`
	Type    string `json:"type" header:"TYPE"`
	Address string `json:"address" header:"ADDRESS"`
	Scope   string `json:"scope" header:"SCOPE"`
}

func globalRows(prog *symtab.Program) any {
	rows := make([]GlobalRow, 0, len(prog.Globals()))
	for _, v := range prog.Globals() {
		rows = append(rows, GlobalRow{
			Name:    v.Name,
			Type:    declared(prog, v),
			Address: fmt.Sprintf("%#x", v.Address),
			Scope:   v.Scope.String(),
		})
	}
	return rows
}

// TypeRow describes one type.
type TypeRow struct {
	ID      int    `json:"id" header:"ID"`
	Name    string `json:"name" header:"NAME"`
	Kind    string `json:"kind" header:"KIND"`
	Size    int64  `json:"size" header:"SIZE"`
	Members int    `json:"members" header:"MEMBERS"`
}

func typeRows(prog *symtab.Program) any {
	rows := make([]TypeRow, 0, len(prog.Types()))
	for _, t := range prog.Types() {
		rows = append(rows, TypeRow{
			ID:      int(t.ID),
			Name:    t.Name,
			Kind:    t.Kind.String(),
			Size:    t.ByteSize,
			Members: len(t.Members),
		})
	}
	return rows
}

// declared renders a descriptor's type the way C declares it, e.g.
// "struct Node *" or "int[3]".
func declared(prog *symtab.Program, v *symtab.Variable) string {
	t := prog.Type(v.Type)
	name := t.DisplayName()
	if t.IsCollection() && t.Name != "" {
		name = t.Kind.String() + " " + t.Name
	}

	var b strings.Builder
	b.WriteString(name)
	ptrs := v.PtrLevels
	if v.StaticArray {
		ptrs--
	}
	if ptrs > 0 {
		b.WriteString(" " + strings.Repeat("*", ptrs))
	}
	if v.RefLevels > 0 {
		b.WriteString(" " + strings.Repeat("&", v.RefLevels))
	}
	if v.StaticArray {
		for _, bound := range v.Bounds {
			fmt.Fprintf(&b, "[%d]", bound+1)
		}
	}
	return b.String()
}
