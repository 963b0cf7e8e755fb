package disambig_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/testutil"
)

func TestGenerator_Letter(t *testing.T) {
	prog := listProgram(t)
	obs := disambig.NewObservations()
	gen := disambig.NewGenerator(prog, obs)

	obs.Observe(prog.Global("head"), true, false)
	obs.Observe(prog.Global("counts"), true, true)
	// A member observed as single still stays a sequence.
	obs.Observe(member(t, prog, "Node", "next"), true, false)

	tests := []struct {
		name     string
		variable *symtab.Variable
		want     disambig.Letter
		emitted  bool
	}{
		{"observed single", prog.Global("head"), disambig.LetterPointer, true},
		{"observed multiple", prog.Global("counts"), disambig.LetterArray, true},
		{"string", prog.Global("label"), disambig.LetterString, true},
		{"plain char", prog.Global("grade"), disambig.LetterInt, true},
		{"plain int", prog.Global("total"), disambig.LetterNone, false},
		{"member pointer", member(t, prog, "Node", "next"), disambig.LetterArray, true},
		{"never observed", prog.Function("sum").Params[0], disambig.LetterArray, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := gen.Letter(tt.variable)
			assert.Equal(t, tt.emitted, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerator_File(t *testing.T) {
	prog := listProgram(t)
	obs := disambig.NewObservations()
	obs.Observe(prog.Global("head"), true, false)

	f := disambig.NewGenerator(prog, obs).File()
	require.Len(t, f.Sections, 3)

	assert.Equal(t, "function: sum", f.Sections[0].Header())
	assert.Equal(t, []disambig.Entry{
		{Name: "values", Letter: disambig.LetterArray},
		{Name: "this", Letter: disambig.LetterArray},
		{Name: "return", Letter: disambig.LetterArray},
	}, f.Sections[0].Entries)

	assert.Equal(t, "globals", f.Sections[1].Header())
	assert.Equal(t, []disambig.Entry{
		{Name: "head", Letter: disambig.LetterPointer},
		{Name: "counts", Letter: disambig.LetterArray},
		{Name: "label", Letter: disambig.LetterString},
		{Name: "grade", Letter: disambig.LetterInt},
	}, f.Sections[1].Entries)

	assert.Equal(t, "usertype.Node", f.Sections[2].Header())
	assert.Equal(t, []disambig.Entry{
		{Name: "next", Letter: disambig.LetterArray},
		{Name: "tag", Letter: disambig.LetterInt},
	}, f.Sections[2].Entries)
}

func TestGenerator_FileSkipsScalarOfSameName(t *testing.T) {
	// typedef int Node; Node id; struct Node { struct Node *next; char tag; } *head;
	b := testutil.NewEntries("mixed.c")
	alias := b.Typedef("Node", b.Int())
	b.Global("id", alias, 0x601000)
	node := b.Reserve()
	nodePtr := b.Pointer(node)
	b.StructAt(node, "Node", 16,
		testutil.Field{Name: "next", Type: nodePtr, Offset: 0},
		testutil.Field{Name: "tag", Type: b.Char(), Offset: 8},
	)
	b.Global("head", nodePtr, 0x601008)
	prog := b.Program(t)

	named := prog.TypesNamed("Node")
	require.Len(t, named, 2)
	require.False(t, named[0].IsCollection())

	f := disambig.NewGenerator(prog, disambig.NewObservations()).File()
	require.Len(t, f.Sections, 2)
	assert.Equal(t, "usertype.Node", f.Sections[1].Header())
	assert.Equal(t, []disambig.Entry{
		{Name: "next", Letter: disambig.LetterArray},
		{Name: "tag", Letter: disambig.LetterInt},
	}, f.Sections[1].Entries)
}

func TestGenerator_WriteThenApply(t *testing.T) {
	prog := listProgram(t)
	obs := disambig.NewObservations()
	obs.Observe(prog.Global("head"), true, false)

	path := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, disambig.NewGenerator(prog, obs).Write(path))

	f, err := disambig.ReadPolicy(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Malformed)

	fresh := listProgram(t)
	policy := disambig.NewPolicy(disambig.Options{}, nil, testutil.NewTestLogger(t))
	policy.Apply(fresh, f)

	assert.Equal(t, 0, policy.Unmatched)
	d := policy.Decide(fresh.Global("head"), symtab.ScopeGlobal)
	assert.True(t, d.Single)
	assert.Equal(t, disambig.SourceOverride, d.Source)
}

func TestObservations_Reset(t *testing.T) {
	prog := listProgram(t)
	obs := disambig.NewObservations()

	head := prog.Global("head")
	next := member(t, prog, "Node", "next")
	obs.Observe(head, true, true)
	obs.Observe(next, true, false)
	obs.Observe(head, false, false)

	nonNull, multiple := obs.Observed(head)
	assert.True(t, nonNull)
	assert.True(t, multiple, "flags only turn on")

	obs.Reset(prog)
	nonNull, multiple = obs.Observed(head)
	assert.False(t, nonNull)
	assert.False(t, multiple)
	nonNull, _ = obs.Observed(next)
	assert.False(t, nonNull)
}
