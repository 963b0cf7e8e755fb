// Package filter selects traversal records with CEL expressions such as
//
//	depth == 0 && name.startsWith("head")
//	sequence && size(addresses) > 4
package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/coral-mesh/varscope/internal/traversal"
)

// Filter is a compiled record predicate. The zero Filter and a nil *Filter
// accept every record.
type Filter struct {
	expr string
	prg  cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("scope", cel.StringType),
		cel.Variable("repr", cel.StringType),
		cel.Variable("depth", cel.IntType),
		cel.Variable("sequence", cel.BoolType),
		cel.Variable("addresses", cel.ListType(cel.UintType)),
		cel.Variable("allocated", cel.BoolType),
	)
}

// Compile parses and type-checks expr. The expression must yield a bool.
// An empty expression accepts everything.
func Compile(expr string) (*Filter, error) {
	if expr == "" {
		return &Filter{}, nil
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q yields %s, not bool", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to plan filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter against r.
func (f *Filter) Match(r traversal.Record) (bool, error) {
	if f == nil || f.prg == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(activation(r))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q on %s: %w", f.expr, r.Name, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return ok, nil
}

// Wrap returns a consumer that passes only matching records to next.
// Records that fail to evaluate are dropped and reported to onError, which
// may be nil. Filtering never stops the walk; next still decides that.
func (f *Filter) Wrap(next traversal.Consumer, onError func(error)) traversal.Consumer {
	if f == nil || f.prg == nil {
		return next
	}
	return func(r traversal.Record) traversal.Result {
		ok, err := f.Match(r)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return traversal.Continue
		}
		if !ok {
			return traversal.Continue
		}
		return next(r)
	}
}

func activation(r traversal.Record) map[string]any {
	typeName := ""
	if r.Type != nil {
		typeName = r.Type.DisplayName()
	}
	scope := ""
	if r.Variable != nil {
		scope = r.Variable.Scope.String()
	}
	return map[string]any{
		"name":      r.Name,
		"type":      typeName,
		"scope":     scope,
		"repr":      r.Repr.String(),
		"depth":     int64(r.Depth),
		"sequence":  r.Sequence,
		"addresses": r.Addresses(),
		"allocated": r.Allocated(),
	}
}
